// Package buffer provides the bounded fan-out log behind genx streams.
//
// A Broadcast has one writer and any number of readers. Each reader keeps its
// own cursor and sees every element in write order. The writer never blocks on
// Add; it gets ErrFull and may Wait for a reader to make room.
//
//	log := buffer.BroadcastN[int](64)
//	r := log.NewReader()
//	log.Add(1, 2, 3)
//	log.CloseWrite(4)
//	for {
//		v, err := r.Next()
//		if err != nil {
//			break // io.EOF after 4
//		}
//		use(v)
//	}
package buffer
