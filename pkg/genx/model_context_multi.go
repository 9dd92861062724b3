package genx

import "iter"

var _ ModelContext = (MultiModelContext)(nil)

// MultiModelContext concatenates several contexts in order. Params come from
// the first context that has any.
type MultiModelContext []ModelContext

func ModelContexts(ctxs ...ModelContext) MultiModelContext {
	return MultiModelContext(ctxs)
}

func concat[T any](ctxs []ModelContext, seq func(ModelContext) iter.Seq[T]) iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, c := range ctxs {
			if c == nil {
				continue
			}
			for v := range seq(c) {
				if !yield(v) {
					return
				}
			}
		}
	}
}

func (mctx MultiModelContext) Prompts() iter.Seq[*Prompt] {
	return concat(mctx, ModelContext.Prompts)
}

func (mctx MultiModelContext) Messages() iter.Seq[*Message] {
	return concat(mctx, ModelContext.Messages)
}

func (mctx MultiModelContext) CoTs() iter.Seq[string] {
	return concat(mctx, ModelContext.CoTs)
}

func (mctx MultiModelContext) Tools() iter.Seq[Tool] {
	return concat(mctx, ModelContext.Tools)
}

func (mctx MultiModelContext) Params() *ModelParams {
	for _, c := range mctx {
		if c == nil {
			continue
		}
		if p := c.Params(); p != nil {
			return p
		}
	}
	return nil
}
