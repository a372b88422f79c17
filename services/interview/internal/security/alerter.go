package security

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var eventCounterScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// Alert is the outcome of counting one security event.
type Alert struct {
	Triggered bool
	Count     int64
	Threshold int64
	Window    time.Duration
}

// Alerter counts failed and throttled security events per client in Redis
// windows shared by every replica. A nil *Alerter ignores everything.
type Alerter struct {
	client *redis.Client
	prefix string
}

// NewAlerter returns nil when addr is empty.
func NewAlerter(addr, password, prefix string) *Alerter {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "interview:alerts"
	}
	return &Alerter{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		prefix: prefix,
	}
}

// Observe counts event/outcome for subject and reports whether the rule's
// threshold was reached inside the current window.
func (a *Alerter) Observe(ctx context.Context, event, outcome, subject string) (Alert, error) {
	if a == nil {
		return Alert{}, nil
	}
	threshold, window, ok := rule(event, outcome)
	if !ok {
		return Alert{}, nil
	}
	slot := time.Now().UTC().UnixMilli() / window.Milliseconds()
	key := fmt.Sprintf("%s:%s:%s:%s:%d", a.prefix, segment(event), segment(outcome), segment(subject), slot)
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	count, err := eventCounterScript.Run(ctx, a.client, []string{key}, window.Milliseconds()).Int64()
	if err != nil {
		return Alert{}, err
	}
	return Alert{
		Triggered: count >= threshold,
		Count:     count,
		Threshold: threshold,
		Window:    window,
	}, nil
}

func (a *Alerter) Close() error {
	if a == nil {
		return nil
	}
	return a.client.Close()
}

func rule(event, outcome string) (threshold int64, window time.Duration, ok bool) {
	switch strings.TrimSpace(outcome) {
	case "rate_limited":
		return 20, time.Minute, true
	case "fail":
	default:
		return 0, 0, false
	}
	switch strings.TrimSpace(event) {
	case "interview.login", "interview.signup":
		return 10, 5 * time.Minute, true
	case "interview.logout", "interview.logout_all":
		return 15, 5 * time.Minute, true
	case "interview.authorize":
		return 25, 5 * time.Minute, true
	default:
		return 0, 0, false
	}
}

func segment(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}
	return strings.NewReplacer(":", "_", "|", "_", " ", "_").Replace(in)
}
