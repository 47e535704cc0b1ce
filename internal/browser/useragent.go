package browser

import (
	"math/rand"
	"strings"
	"sync"
	"time"
)

type UserAgentType string

const (
	UserAgentAuto   UserAgentType = "auto"
	UserAgentChrome UserAgentType = "chrome"
	UserAgentEdge   UserAgentType = "edge"
)

// Chromium-family agents only; pages are rendered by Chrome.
var userAgents = map[UserAgentType][]string{
	UserAgentChrome: {
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/137.0.0.0 Safari/537.36",
	},
	UserAgentEdge: {
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Safari/537.36 Edg/138.0.0.0",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Safari/537.36 Edg/138.0.0.0",
	},
}

type UserAgentSelector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewUserAgentSelector() *UserAgentSelector {
	return &UserAgentSelector{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// GetUserAgent returns a user agent for uaType. "auto" or empty picks any
// known agent, a browser name picks one of that browser's agents, and
// anything else is returned as a custom agent string.
func (uas *UserAgentSelector) GetUserAgent(uaType string) string {
	trimmed := strings.TrimSpace(uaType)

	switch UserAgentType(strings.ToLower(trimmed)) {
	case "", UserAgentAuto:
		return uas.getRandomFromAll()
	case UserAgentChrome, UserAgentEdge:
		return uas.getRandomFromType(UserAgentType(strings.ToLower(trimmed)))
	default:
		return trimmed
	}
}

func (uas *UserAgentSelector) getRandomFromAll() string {
	var all []string
	for _, t := range []UserAgentType{UserAgentChrome, UserAgentEdge} {
		all = append(all, userAgents[t]...)
	}
	return uas.pick(all)
}

func (uas *UserAgentSelector) getRandomFromType(uaType UserAgentType) string {
	agents, ok := userAgents[uaType]
	if !ok || len(agents) == 0 {
		return uas.getRandomFromAll()
	}
	return uas.pick(agents)
}

func (uas *UserAgentSelector) pick(agents []string) string {
	uas.mu.Lock()
	defer uas.mu.Unlock()
	return agents[uas.rng.Intn(len(agents))]
}
