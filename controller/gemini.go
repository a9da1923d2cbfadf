package controller

import (
	"io"
	"net/http"
	"regexp"
	"strings"
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

// modelFromPath extracts <name> from a Gemini URL segment "models/<name>[:action]",
// used as a fallback when the response body lacks modelVersion, per §4.11/§9(c).
var modelFromPath = regexp.MustCompile(`models/([^/:]+)(?::[^/]+)?`)

func geminiModelFromPath(path string) string {
	m := modelFromPath.FindStringSubmatch(path)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// GeminiForward handles any path under the Gemini surface, forwarding the
// full path and query verbatim to the upstream base URL.
func (d *Deps) GeminiForward(c *gin.Context) {
	requestId, _ := c.Get(ctxkey.RequestId)
	sessionId, _ := c.Get(ctxkey.SessionId)
	start := time.Now()
	lg := gmw.GetLogger(c)

	body, err := common.GetRequestBody(c)
	if err != nil {
		middleware.AbortWithError(c, http.StatusBadRequest, err)
		return
	}

	endpoint := c.Request.URL.Path
	if c.Request.URL.RawQuery != "" {
		endpoint += "?" + c.Request.URL.RawQuery
	}
	pathModel := geminiModelFromPath(c.Request.URL.Path)
	isStream := strings.Contains(c.Request.URL.Path, "streamGenerateContent")

	ctx := gmw.Ctx(c)

	if !isStream {
		resp, err := d.Forwarder.ForwardWithRetry(ctx, model.AppFamilyGemini, endpoint, body, nil, c.Request.Header, "")
		latencyMs := time.Since(start).Milliseconds()
		if err != nil {
			d.logUpstreamError(ctx, err, errorParams{
				appType:      model.AppFamilyGemini,
				requestModel: pathModel,
				latencyMs:    latencyMs,
				requestId:    requestId,
				sessionId:    sessionId,
			})
			middleware.AbortWithError(c, statusCodeOf(err), err)
			return
		}
		tokenUsage, ok := usage.GeminiBatch(resp.Body)
		if tokenUsage.Model == "" {
			tokenUsage.Model = pathModel
		}
		d.logSuccess(ctx, successParams{
			appType:      model.AppFamilyGemini,
			providerId:   resp.Provider.ID,
			providerType: d.resolveProviderType(model.AppFamilyGemini, resp.Provider),
			requestModel: pathModel,
			tokenUsage:   tokenUsage,
			statusCode:   resp.StatusCode,
			latencyMs:    latencyMs,
			requestId:    requestId,
			sessionId:    sessionId,
		})
		_ = ok
		for k, v := range resp.Header {
			if strings.EqualFold(k, "Content-Length") || strings.EqualFold(k, "Transfer-Encoding") {
				continue
			}
			for _, vv := range v {
				c.Header(k, vv)
			}
		}
		c.Data(resp.StatusCode, resp.Header.Get("Content-Type"), resp.Body)
		return
	}

	upstream, provider, err := d.dispatchUpstream(ctx, model.AppFamilyGemini, endpoint, body, nil, c.Request.Header, "")
	latencyMs := time.Since(start).Milliseconds()
	if err != nil {
		d.logUpstreamError(ctx, err, errorParams{
			appType:      model.AppFamilyGemini,
			requestModel: pathModel,
			latencyMs:    latencyMs,
			streaming:    true,
			requestId:    requestId,
			sessionId:    sessionId,
		})
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
	if scanErr != nil && scanErr != io.EOF {
		lg.Warn("gemini stream read failed", zap.Error(scanErr))
	}

	tokenUsage, ok := usage.GeminiStream(events)
	if tokenUsage.Model == "" {
		tokenUsage.Model = pathModel
	}
	_ = ok
	d.logSuccess(ctx, successParams{
		appType:      model.AppFamilyGemini,
		providerId:   provider.ID,
		providerType: d.resolveProviderType(model.AppFamilyGemini, provider),
		requestModel: pathModel,
		tokenUsage:   tokenUsage,
		statusCode:   200,
		latencyMs:    latencyMs,
		streaming:    true,
		requestId:    requestId,
		sessionId:    sessionId,
	})
}
