package genx

import (
	"encoding/json"
	"errors"

	"github.com/kaptinlin/jsonrepair"
)

// unmarshalJSON decodes data into v. Model output often has trailing commas,
// unquoted keys or a cut-off tail; on a syntax error the text is repaired
// with jsonrepair and decoded again.
func unmarshalJSON(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	var se *json.SyntaxError
	if !errors.As(err, &se) {
		return err
	}
	fixed, rerr := jsonrepair.JSONRepair(string(data))
	if rerr != nil {
		return errors.Join(err, rerr)
	}
	return json.Unmarshal([]byte(fixed), v)
}
