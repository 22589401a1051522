package telegram

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/issuebot/core/config"
	"github.com/m3rciful/issuebot/core/telegram/netutil"

	tele "gopkg.in/telebot.v4"
)

const (
	defaultLongPoll = 10 * time.Second
	apiTimeout      = 30 * time.Second
	apiRetries      = 3
	apiBackoff      = 2 * time.Second
)

// newPoller returns a webhook listener for run_mode "webhook" and a long poller otherwise.
func newPoller(cfg *coreconfig.Config) tele.Poller {
	if strings.EqualFold(strings.TrimSpace(cfg.Telegram.RunMode), coreconfig.RunModeWebhook) {
		return &tele.Webhook{
			Listen:   net.JoinHostPort(cfg.Webhook.Listen, strconv.Itoa(cfg.Webhook.Port)),
			Endpoint: &tele.WebhookEndpoint{PublicURL: cfg.Webhook.URL},
		}
	}
	return &tele.LongPoller{Timeout: longPollTimeout(cfg)}
}

func longPollTimeout(cfg *coreconfig.Config) time.Duration {
	if s := cfg.Telegram.LongPollTimeoutSeconds; s > 0 {
		return time.Duration(s) * time.Second
	}
	return defaultLongPoll
}

// newHTTPClient builds the Bot API client. Dial and timeout failures are retried with linear backoff.
func newHTTPClient(cfg *coreconfig.Config) *http.Client {
	base := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{
		Timeout:   apiTimeout + longPollTimeout(cfg),
		Transport: retrying{next: base, retries: apiRetries, backoff: apiBackoff},
	}
}

type retrying struct {
	next    http.RoundTripper
	retries int
	backoff time.Duration
}

func (t retrying) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	for attempt := 1; err != nil && attempt <= t.retries && netutil.ShouldRetry(err); attempt++ {
		if req.Body != nil && req.GetBody == nil {
			break
		}
		if werr := netutil.Sleep(req.Context(), t.backoff*time.Duration(attempt)); werr != nil {
			return nil, werr
		}
		retry := req.Clone(req.Context())
		if req.GetBody != nil {
			body, berr := req.GetBody()
			if berr != nil {
				return nil, berr
			}
			retry.Body = body
		}
		resp, err = t.next.RoundTrip(retry)
	}
	return resp, err
}
