package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"teaminova/internal/config"
)

const (
	defaultWebhookTimeout = 5 * time.Second
	defaultWebhookQueue   = 256
)

// WebhookNotifier posts notices as JSON to the configured endpoints from a
// background worker. Notify never blocks the caller.
type WebhookNotifier struct {
	hooks  []config.WebhookConfig
	client *http.Client
	logger logrus.FieldLogger

	mu     sync.Mutex
	closed bool
	queue  chan Notice
	done   chan struct{}
}

func NewWebhookNotifier(hooks []config.WebhookConfig, logger logrus.FieldLogger) *WebhookNotifier {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	w := &WebhookNotifier{
		hooks:  hooks,
		client: &http.Client{Timeout: defaultWebhookTimeout},
		logger: logger,
		queue:  make(chan Notice, defaultWebhookQueue),
		done:   make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *WebhookNotifier) Notify(_ context.Context, n Notice) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	select {
	case w.queue <- n:
	default:
		w.logger.WithField("action", n.Action).Warn("webhook: queue full, notice dropped")
	}
}

// Close stops accepting notices and waits for queued deliveries.
func (w *WebhookNotifier) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()
	<-w.done
}

func (w *WebhookNotifier) run() {
	defer close(w.done)
	for n := range w.queue {
		w.dispatchAll(n)
	}
}

func (w *WebhookNotifier) dispatchAll(n Notice) {
	for _, hook := range w.hooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		if hook.FailuresOnly && n.Kind != KindFailure {
			continue
		}
		if !newActionFilter(hook.Actions).match(n.Action) {
			continue
		}
		if err := w.postNotice(context.Background(), hook, n); err != nil {
			w.logger.WithError(err).WithField("url", hook.URL).Warn("webhook: delivery failed")
		}
	}
}

func (w *WebhookNotifier) postNotice(ctx context.Context, hook config.WebhookConfig, n Notice) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	client := w.client
	if hook.TimeoutSeconds > 0 {
		timeout := time.Duration(hook.TimeoutSeconds) * time.Second
		if timeout != w.client.Timeout {
			client = &http.Client{Timeout: timeout}
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Teaminova-Action", n.Action)
	req.Header.Set("X-Teaminova-Kind", string(n.Kind))
	req.Header.Set("X-Teaminova-Delivery", uuid.NewString())
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Teaminova-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

type actionFilter struct {
	all bool
	set map[string]struct{}
}

// newActionFilter matches everything when actions is empty. Entries ending in
// ".*" match by prefix.
func newActionFilter(actions []string) actionFilter {
	set := make(map[string]struct{}, len(actions))
	for _, a := range actions {
		key := strings.TrimSpace(a)
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	if len(set) == 0 {
		return actionFilter{all: true}
	}
	return actionFilter{set: set}
}

func (f actionFilter) match(action string) bool {
	if f.all {
		return true
	}
	if _, ok := f.set[action]; ok {
		return true
	}
	for key := range f.set {
		if prefix, ok := strings.CutSuffix(key, ".*"); ok && strings.HasPrefix(action, prefix+".") {
			return true
		}
	}
	return false
}
