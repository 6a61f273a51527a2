package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/imroc/req/v3"
	"github.com/sirupsen/logrus"

	opsmatic "github.com/opsmatic/opsmatic-handler"
	"github.com/opsmatic/opsmatic-handler/pkg/config"
	"github.com/opsmatic/opsmatic-handler/pkg/models"
)

// UserAgent identifies the handler to the collector.
func UserAgent() string {
	return "Opsmatic Chef Handler " + opsmatic.Version
}

type Client interface {
	Submit(ctx context.Context, event models.ReportEvent) error
}

// NewClient returns a collector client for cfg. Proxy settings are read from
// the process environment.
func NewClient(cfg config.Config) (Client, error) {
	if os.Getenv("MOCK_OPSMATIC_COLLECTOR") == "true" {
		logrus.Info("Using mock collector client")
		return &MockClient{}, nil
	}
	return NewHTTPClient(cfg, os.Getenv)
}

// NewHTTPClient builds the req based client. getenv is used for proxy lookup.
func NewHTTPClient(cfg config.Config, getenv func(string) string) (*HTTPClient, error) {
	endpoint, err := EventURL(cfg.CollectorURL, cfg.IntegrationToken)
	if err != nil {
		return nil, err
	}

	timeout := cfg.TimeoutDuration()
	dialer := &net.Dialer{Timeout: timeout}
	client := req.C().
		SetTimeout(timeout).
		SetDial(dialer.DialContext).
		SetUserAgent(UserAgent()).
		SetCommonHeader("Content-Type", "application/json")

	if !cfg.SSLPeerVerify {
		// TODO: verify peers by default once CA bundles are located on every supported platform
		client.EnableInsecureSkipVerify()
	}

	if proxy := ProxyFromEnvironment(getenv); proxy != nil {
		logrus.WithFields(logrus.Fields{"proxy": proxy.Redacted(), "env": proxy.EnvVar}).Debug("Using proxy for collector")
		client.SetProxy(http.ProxyURL(proxy.proxyURL()))
	} else {
		client.SetProxy(nil)
	}

	if cfg.DevMode {
		logrus.Info("running HTTP Client in development mode")
		client.DevMode()
	}

	return &HTTPClient{endpoint: endpoint, client: client}, nil
}

type HTTPClient struct {
	endpoint string
	client   *req.Client
}

// Submit posts the event. It returns *StatusError for any answer other than
// 202 and *TimeoutError when the collector is too slow.
func (c *HTTPClient) Submit(ctx context.Context, event models.ReportEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	logrus.Debugf("Collector payload: %s", payload)

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(c.endpoint)
	if err != nil {
		timedOut := isTimeout(err)
		// the request URL carries the token
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		if timedOut {
			return &TimeoutError{Err: err}
		}
		return fmt.Errorf("failed to post event: %w", err)
	}

	if resp.StatusCode != http.StatusAccepted {
		return &StatusError{StatusCode: resp.StatusCode, Body: resp.String()}
	}
	return nil
}

// EventURL appends the token to the collector URL, keeping any query the URL
// already carries.
func EventURL(collectorURL, token string) (string, error) {
	u, err := url.Parse(collectorURL)
	if err != nil {
		return "", fmt.Errorf("invalid collector URL: %w", err)
	}
	qs := []string{}
	if u.RawQuery != "" {
		qs = strings.Split(u.RawQuery, "&")
	}
	qs = append(qs, "token="+url.QueryEscape(token))
	u.RawQuery = strings.Join(qs, "&")
	return u.String(), nil
}

type MockClient struct{}

func (m MockClient) Submit(ctx context.Context, event models.ReportEvent) error {
	logrus.WithFields(logrus.Fields{"summary": event.Summary, "subject": event.Subject}).Info("Mock: Submitting event")
	return nil
}
