package health

import (
	"context"
	"fmt"
	"net/http"
)

// Pinger is implemented by dependencies that can report their own
// reachability, such as the usage database and the Redis client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck adapts a Pinger to a CheckFunc.
func PingCheck(p Pinger) CheckFunc {
	return p.Ping
}

// UpstreamCheck reports whether the origin answers at all. Any HTTP
// response counts, since the origin's own status codes are not the relay's
// concern; only transport failures make the check fail.
func UpstreamCheck(client *http.Client, url string) CheckFunc {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return fmt.Errorf("build upstream request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("upstream unreachable: %w", err)
		}
		resp.Body.Close()
		return nil
	}
}
