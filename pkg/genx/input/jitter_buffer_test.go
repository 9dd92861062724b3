package input

import (
	"slices"
	"testing"
)

type seqPacket struct {
	label string
	ts    int64
}

func (p seqPacket) Timestamp() int64 { return p.ts }

func pkt(label string, ts int64) seqPacket { return seqPacket{label: label, ts: ts} }

// drain pops everything and returns the labels in pop order.
func drain(jb *JitterBuffer[int64, seqPacket]) []string {
	var out []string
	for {
		p, ok := jb.Pop()
		if !ok {
			return out
		}
		out = append(out, p.label)
	}
}

func TestJitterBuffer_Order(t *testing.T) {
	tests := []struct {
		name string
		cap  int
		push []seqPacket
		want []string
		drop uint64
	}{
		{
			name: "reorders",
			cap:  100,
			push: []seqPacket{pkt("c", 300), pkt("a", 100), pkt("b", 200)},
			want: []string{"a", "b", "c"},
		},
		{
			name: "burst",
			cap:  100,
			push: []seqPacket{pkt("5", 500), pkt("3", 300), pkt("1", 100), pkt("4", 400), pkt("2", 200)},
			want: []string{"1", "2", "3", "4", "5"},
		},
		{
			name: "ties keep push order",
			cap:  100,
			push: []seqPacket{pkt("x", 200), pkt("a", 100), pkt("b", 100), pkt("c", 100)},
			want: []string{"a", "b", "c", "x"},
		},
		{
			name: "overflow keeps newest window",
			cap:  3,
			push: []seqPacket{pkt("1", 100), pkt("2", 200), pkt("3", 300), pkt("4", 400), pkt("5", 500)},
			want: []string{"3", "4", "5"},
			drop: 2,
		},
		{
			name: "late packet is the one evicted",
			cap:  2,
			push: []seqPacket{pkt("b", 200), pkt("c", 300), pkt("a", 100)},
			want: []string{"b", "c"},
			drop: 1,
		},
		{
			name: "zero capacity",
			cap:  0,
			push: []seqPacket{pkt("a", 1)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jb := NewJitterBuffer[int64, seqPacket](tt.cap)
			for _, p := range tt.push {
				jb.Push(p)
			}
			if got := drain(jb); !slices.Equal(got, tt.want) {
				t.Errorf("pop order = %v, want %v", got, tt.want)
			}
			if jb.Dropped() != tt.drop {
				t.Errorf("Dropped() = %d, want %d", jb.Dropped(), tt.drop)
			}
		})
	}
}

func TestJitterBuffer_TiesAcrossPops(t *testing.T) {
	jb := NewJitterBuffer[int64, seqPacket](100)
	jb.Push(pkt("a", 100))
	jb.Push(pkt("z", 50))
	jb.Push(pkt("b", 100))
	if p, _ := jb.Pop(); p.label != "z" {
		t.Fatalf("first pop = %q, want z", p.label)
	}
	jb.Push(pkt("c", 100))
	if got := drain(jb); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Errorf("pop order = %v", got)
	}
}

func TestJitterBuffer_Peek(t *testing.T) {
	jb := NewJitterBuffer[int64, seqPacket](100)
	if _, ok := jb.Peek(); ok {
		t.Error("Peek on empty buffer returned ok")
	}
	jb.Push(pkt("b", 200))
	jb.Push(pkt("a", 100))
	if p, ok := jb.Peek(); !ok || p.label != "a" {
		t.Errorf("Peek() = %q, %v", p.label, ok)
	}
	if jb.Len() != 2 {
		t.Errorf("Len() after Peek = %d", jb.Len())
	}
	if jb.Cap() != 100 {
		t.Errorf("Cap() = %d", jb.Cap())
	}
}

func TestJitterBuffer_Clear(t *testing.T) {
	jb := NewJitterBuffer[int64, seqPacket](2)
	for i := range int64(3) {
		jb.Push(pkt("x", i))
	}
	jb.Clear()
	if jb.Len() != 0 {
		t.Errorf("Len() after Clear = %d", jb.Len())
	}
	if _, ok := jb.Pop(); ok {
		t.Error("Pop after Clear returned ok")
	}
	if jb.Dropped() != 1 {
		t.Errorf("Clear reset the drop counter: %d", jb.Dropped())
	}
}
