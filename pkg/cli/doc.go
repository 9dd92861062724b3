// Package cli provides common utilities for the genx command-line tool.
//
// This package includes:
//   - Result printing (YAML, JSON, raw)
//   - Request file loading (YAML/JSON)
//   - Chunk rendering for streamed model output
//   - The ~/.genx directory layout
//
// Example usage:
//
//	p, err := cli.NewPrinter(os.Stdout, "json")
//	if err != nil {
//	    return err
//	}
//	p.Print(result)
//
//	// Render a stream to the terminal
//	r := cli.NewRenderer(os.Stdout)
//	for {
//	    chunk, err := stream.Next()
//	    if err != nil {
//	        r.End(err)
//	        break
//	    }
//	    r.Chunk(chunk)
//	}
package cli
