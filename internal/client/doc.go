// Package client talks to hello-server: it sends one request line per
// connection and parses the response.
//
// # Basic Usage
//
//	c := client.New("127.0.0.1:7878")
//	resp, err := c.Get(ctx, "/")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(resp.StatusCode, string(resp.Body))
//
// # Load Generation
//
// Load sends a fixed number of requests from a worker pool and reports the
// collected metrics:
//
//	snap, err := c.Load(ctx, client.LoadConfig{
//	    Concurrency: 8,
//	    Requests:    1000,
//	    Paths:       []string{"/", "/missing"},
//	})
//
// The LoadConfig fields:
//   - Concurrency: parallel workers (must be at least 1)
//   - Requests: total requests to send
//   - Paths: request paths, used round-robin
package client
