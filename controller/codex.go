package controller

import (
	"encoding/json"
	"net/http"
	"time"

	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/cliproxy/gateway/common"
	"github.com/cliproxy/gateway/common/ctxkey"
	"github.com/cliproxy/gateway/middleware"
	"github.com/cliproxy/gateway/relay/model"
	"github.com/cliproxy/gateway/relay/transform"
	"github.com/cliproxy/gateway/relay/usage"
)

type codexRequestFields struct {
	Stream bool   `json:"stream"`
	Model  string `json:"model"`
}

// CodexResponses handles POST /v1/responses. Passthrough-only: Codex has no
// transforming providers, so the wire body equals the client body.
func (d *Deps) CodexResponses(c *gin.Context) {
	d.codexPassthrough(c, "/v1/responses")
}

// CodexChatCompletions handles POST /v1/chat/completions.
func (d *Deps) CodexChatCompletions(c *gin.Context) {
	d.codexPassthrough(c, "/v1/chat/completions")
}

func (d *Deps) codexPassthrough(c *gin.Context, endpoint string) {
	requestId, _ := c.Get(ctxkey.RequestId)
	sessionId, _ := c.Get(ctxkey.SessionId)
	start := time.Now()
	lg := gmw.GetLogger(c)

	body, err := common.GetRequestBody(c)
	if err != nil {
		middleware.AbortWithError(c, http.StatusBadRequest, err)
		return
	}

	var fields codexRequestFields
	_ = json.Unmarshal(body, &fields)

	ctx := gmw.Ctx(c)

	if !fields.Stream {
		resp, err := d.Forwarder.ForwardWithRetry(ctx, model.AppFamilyCodex, endpoint, body, nil, c.Request.Header, "")
		latencyMs := time.Since(start).Milliseconds()
		if err != nil {
			d.logCodexError(ctx, err, fields, endpoint, requestId, sessionId, latencyMs, false)
			middleware.AbortWithError(c, statusCodeOf(err), err)
			return
		}
		tokenUsage, ok := usage.CodexBatch(resp.Body)
		d.logCodexSuccess(ctx, resp, fields, endpoint, tokenUsage, ok, requestId, sessionId, latencyMs, false)
		c.Header("Content-Type", "application/json")
		c.Data(resp.StatusCode, "application/json", resp.Body)
		return
	}

	upstream, provider, err := d.dispatchUpstream(ctx, model.AppFamilyCodex, endpoint, body, nil, c.Request.Header, "")
	latencyMs := time.Since(start).Milliseconds()
	if err != nil {
		d.logCodexError(ctx, err, fields, endpoint, requestId, sessionId, latencyMs, true)
		middleware.AbortWithError(c, statusCodeOf(err), err)
		return
	}
	defer upstream.Body.Close()

	common.SetEventStreamHeaders(c)
	c.Status(http.StatusOK)
	flusher, _ := c.Writer.(http.Flusher)

	var events []usage.SSEEvent
	scanErr := transform.ScanSSE(upstream.Body, func(ev transform.Event) error {
		events = append(events, usage.SSEEvent{Event: ev.Event, Data: ev.Data})
		if ev.Event != "" {
			c.SSEvent(ev.Event, string(ev.Data))
		} else {
			c.Writer.Write([]byte("data: " + string(ev.Data) + "\n\n"))
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	if scanErr != nil {
		lg.Warn("codex passthrough stream read failed", zap.Error(scanErr))
	}

	tokenUsage, ok := usage.CodexStream(events)
	d.logCodexStreamSuccess(ctx, provider, fields, endpoint, tokenUsage, ok, requestId, sessionId, latencyMs)
}
