package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/mrussa/meeshosync/internal/portal"
)

// PageExecutor runs fetch() inside the logged-in tab, so the browser attaches
// its own cookies to every call.
type PageExecutor struct {
	ctx     context.Context
	baseURL string
	timeout time.Duration
}

type pageResult struct {
	Status int    `json:"status"`
	Body   string `json:"body"`
}

func (e *PageExecutor) Do(ctx context.Context, req portal.Request) ([]byte, error) {
	script, err := fetchScript(e.baseURL+req.Path, portal.Headers(req.Identifier), req.Body)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", req.Path, err)
	}

	runCtx, cancel := context.WithTimeout(e.ctx, e.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var res pageResult
	err = chromedp.Run(runCtx, chromedp.Evaluate(script, &res, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("page fetch %s: %w", req.Path, err)
	}
	if res.Status < 200 || res.Status > 299 {
		return nil, portal.NewStatusError(req.Path, res.Status, []byte(res.Body))
	}
	return []byte(res.Body), nil
}

// fetchScript builds an async expression that POSTs body as JSON and
// resolves to {status, body}.
func fetchScript(url string, headers map[string]string, body any) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	u, err := json.Marshal(url)
	if err != nil {
		return "", err
	}
	h, err := json.Marshal(headers)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(string(payload))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`(async () => {
  const res = await fetch(%s, {method: "POST", credentials: "include", headers: %s, body: %s});
  return {status: res.status, body: await res.text()};
})()`, u, h, b), nil
}
