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
	"github.com/cliproxy/gateway/relay/forwarder"
	"github.com/cliproxy/gateway/relay/model"
	"github.com/cliproxy/gateway/relay/transform"
	"github.com/cliproxy/gateway/relay/usage"
)

const anthropicVersion = "2023-06-01"

// claudeRequestFields is the minimal shape read off the inbound body to
// decide the four-branch dispatch in §4.11: whether the client asked for a
// stream, and which model it requested (for logging when the response
// doesn't echo it back).
type claudeRequestFields struct {
	Stream bool   `json:"stream"`
	Model  string `json:"model"`
}

// ClaudeMessages handles POST /v1/messages.
func (d *Deps) ClaudeMessages(c *gin.Context) {
	requestId, _ := c.Get(ctxkey.RequestId)
	start := time.Now()
	lg := gmw.GetLogger(c)

	body, err := common.GetRequestBody(c)
	if err != nil {
		middleware.AbortWithError(c, http.StatusBadRequest, err)
		return
	}

	var fields claudeRequestFields
	if err := json.Unmarshal(body, &fields); err != nil {
		middleware.AbortWithError(c, http.StatusBadRequest, err)
		return
	}
	sessionId, _ := c.Get(ctxkey.SessionId)

	adapter := d.Adapters[model.AppFamilyClaude]
	transformFn := func(clientBody []byte, provider model.Provider) ([]byte, error) {
		baseURL, err := adapter.ExtractBaseURL(provider)
		if err != nil {
			return nil, err
		}
		return transform.AnthropicToOpenAIRequest(clientBody, baseURL)
	}

	if fields.Stream {
		d.claudeStream(c, fields, body, transformFn, requestId, sessionId, start, lg)
		return
	}
	d.claudeBatch(c, fields, body, transformFn, requestId, sessionId, start, lg)
}

func (d *Deps) claudeBatch(c *gin.Context, fields claudeRequestFields, clientBody []byte, transformFn forwarder.TransformRequestFunc, requestId, sessionId any, start time.Time, lg *zap.Logger) {
	ctx := gmw.Ctx(c)
	resp, err := d.Forwarder.ForwardWithRetry(ctx, model.AppFamilyClaude, "/v1/messages", clientBody, transformFn, c.Request.Header, anthropicVersion)
	latencyMs := time.Since(start).Milliseconds()
	if err != nil {
		d.logClaudeError(ctx, err, fields, requestId, sessionId, latencyMs, false)
		middleware.AbortWithError(c, statusCodeOf(err), err)
		return
	}

	outBody := resp.Body
	if resp.Transformed {
		translated, terr := transform.OpenAIToAnthropicResponse(resp.Body)
		if terr != nil {
			lg.Warn("translate openai response to anthropic failed", zap.Error(terr))
			middleware.AbortWithError(c, http.StatusBadGateway, terr)
			return
		}
		outBody = translated
	}

	tokenUsage, ok := usage.ClaudeBatch(outBody)
	d.logClaudeSuccess(ctx, resp, fields, tokenUsage, ok, requestId, sessionId, latencyMs, false)

	c.Header("Content-Type", "application/json")
	c.Data(resp.StatusCode, "application/json", outBody)
}

func (d *Deps) claudeStream(c *gin.Context, fields claudeRequestFields, clientBody []byte, transformFn forwarder.TransformRequestFunc, requestId, sessionId any, start time.Time, lg *zap.Logger) {
	ctx := gmw.Ctx(c)

	upstream, provider, err := d.dispatchUpstream(ctx, model.AppFamilyClaude, "/v1/messages", clientBody, transformFn, c.Request.Header, anthropicVersion)
	latencyMs := time.Since(start).Milliseconds()
	if err != nil {
		d.logClaudeError(ctx, err, fields, requestId, sessionId, latencyMs, true)
		middleware.AbortWithError(c, statusCodeOf(err), err)
		return
	}
	defer upstream.Body.Close()

	common.SetEventStreamHeaders(c)
	c.Status(http.StatusOK)
	flusher, _ := c.Writer.(http.Flusher)

	needsTransform := d.Adapters[model.AppFamilyClaude].NeedsTransform(provider)

	var claudeEvents []usage.SSEEvent
	firstEventAt := time.Time{}

	if needsTransform {
		translator := transform.NewStreamTranslator()
		scanErr := transform.ScanSSE(upstream.Body, func(ev transform.Event) error {
			if firstEventAt.IsZero() {
				firstEventAt = time.Now()
			}
			if string(ev.Data) == "[DONE]" {
				for _, out := range translator.Close() {
					writeAnthropicEvent(c, out)
					claudeEvents = append(claudeEvents, usage.SSEEvent{Event: out.Event, Data: out.Data})
				}
				if flusher != nil {
					flusher.Flush()
				}
				return nil
			}
			for _, out := range translator.Feed(ev.Data) {
				writeAnthropicEvent(c, out)
				claudeEvents = append(claudeEvents, usage.SSEEvent{Event: out.Event, Data: out.Data})
			}
			if flusher != nil {
				flusher.Flush()
			}
			return nil
		})
		if scanErr != nil {
			lg.Warn("stream translation read failed", zap.Error(scanErr))
		}
	} else {
		scanErr := transform.ScanSSE(upstream.Body, func(ev transform.Event) error {
			if firstEventAt.IsZero() {
				firstEventAt = time.Now()
			}
			claudeEvents = append(claudeEvents, usage.SSEEvent{Event: ev.Event, Data: ev.Data})
			if ev.Event != "" {
				writeAnthropicEvent(c, ev)
			} else {
				c.Writer.Write([]byte("data: " + string(ev.Data) + "\n\n"))
			}
			if flusher != nil {
				flusher.Flush()
			}
			return nil
		})
		if scanErr != nil {
			lg.Warn("passthrough stream read failed", zap.Error(scanErr))
		}
	}

	var firstTokenMs *int64
	if !firstEventAt.IsZero() {
		ms := firstEventAt.Sub(start).Milliseconds()
		firstTokenMs = &ms
	}

	tokenUsage, ok := usage.ClaudeStream(claudeEvents)
	d.logClaudeStreamSuccess(ctx, provider, fields, tokenUsage, ok, requestId, sessionId, latencyMs, true, firstTokenMs)
}

// writeAnthropicEvent frames ev as "event: <name>\ndata: <payload>\n\n".
func writeAnthropicEvent(c *gin.Context, ev transform.Event) {
	c.Writer.Write([]byte("event: " + ev.Event + "\ndata: " + string(ev.Data) + "\n\n"))
}

func statusCodeOf(err error) int {
	if wse, ok := err.(*model.ErrorWithStatusCode); ok {
		switch wse.Kind {
		case model.ErrorKindNoAvailable:
			return http.StatusServiceUnavailable
		case model.ErrorKindConfig:
			return http.StatusBadRequest
		case model.ErrorKindTransform:
			return http.StatusBadGateway
		case model.ErrorKindUpstream:
			return wse.StatusCode
		case model.ErrorKindMaxRetries:
			if wse.StatusCode >= 400 {
				return wse.StatusCode
			}
			return http.StatusBadGateway
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
