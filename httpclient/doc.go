// Package httpclient is a client for the dbcleaner admin API.
//
// A test harness running outside the process under test uses it to bracket
// every test with a forced transaction:
//
//	client := httpclient.New(
//	    httpclient.WithBaseURL("http://app:7070"),
//	    httpclient.WithRetryConfig(httpclient.StartupRetryConfig()),
//	)
//
//	if _, err := client.Start(ctx); err != nil {
//	    t.Fatal(err)
//	}
//	t.Cleanup(func() {
//	    if _, err := client.Rollback(context.Background()); err != nil {
//	        t.Error(err)
//	    }
//	})
//
// # Errors
//
// Transport failures are returned wrapped. A 4xx or 5xx answer is returned as
// an *APIError; for a partly failed sweep the SweepReport is returned too, so
// the caller can see which connections failed.
//
// # Retries
//
// Retries use github.com/cenkalti/backoff/v5 with exponential backoff and
// jitter. DefaultClassifier retries network errors and 429, 502 and 504. A
// 500 is never retried: it means the sweep ran.
//
// # Observability
//
// Every call produces one client span named "HTTP {method} {operation}" with
// retries as span events, and records:
//   - http.client.request.duration
//   - http.client.request.errors
//   - http.client.retry.attempts, http.client.retry.exhausted
//   - http.client.retry.duration
package httpclient
