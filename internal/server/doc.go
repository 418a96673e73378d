// Package server accepts TCP connections and hands each one to a worker pool
// as a single job.
//
// A job reads one request line, maps it to a canned page, writes
//
//	<status line>\r\nContent-Length: <n>\r\n\r\n<body>
//
// and closes the connection. There is no keep-alive: one request per
// connection.
//
// # Routes
//
//   - "GET / HTTP/1.1" returns 200 with hello.html
//   - "GET /sleep HTTP/1.1" waits Config.SleepDelay, then returns 200 with hello.html
//   - anything else returns 404 with 404.html
//
// Connections are submitted with the pool's blocking Submit, so a full queue
// slows the accept loop down instead of refusing work. Once the pool has
// begun shutting down it refuses new jobs; those connections are answered
// with 503 outside the pool and closed.
package server
