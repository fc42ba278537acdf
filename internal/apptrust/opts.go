package apptrust

import (
	"net/http"
	"time"

	"github.com/go-logr/logr"

	"github.com/weaveworks/apptrust-promoter/pkg/stages"
)

type Opt func(c *Client) error

func Logger(l logr.Logger) Opt {
	return func(c *Client) error {
		c.log = l
		return nil
	}
}

// Timeout bounds each request. Zero or negative values keep the default.
func Timeout(d time.Duration) Opt {
	return func(c *Client) error {
		if d > 0 {
			c.timeout = d
		}
		return nil
	}
}

// ProjectKey sets the project used to namespace stage names.
func ProjectKey(key string) Opt {
	return func(c *Client) error {
		c.codec = stages.NewCodec(key)
		return nil
	}
}

// Transport replaces the base round tripper. The bearer token is still added on top of it.
func Transport(rt http.RoundTripper) Opt {
	return func(c *Client) error {
		c.transport = rt
		return nil
	}
}
