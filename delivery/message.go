package delivery

import (
	"fmt"
	"net/url"
	"time"

	"github.com/chainpulse/blockwatch/models"
	"github.com/google/uuid"
)

type Kind string

const (
	KindProgress Kind = "progress"
	KindReached  Kind = "reached"
)

// Message is the structured payload handed to the delivery channel.
type Message struct {
	Kind            Kind            `json:"kind"`
	WatchID         uuid.UUID       `json:"watch_id"`
	Title           string          `json:"title,omitempty"`
	Tier            models.Tier     `json:"tier,omitempty"`
	Network         models.Network  `json:"network"`
	TargetHeight    int64           `json:"target_height"`
	CurrentHeight   int64           `json:"current_height"`
	BlocksRemaining int64           `json:"blocks_remaining"`
	EstimatedAt     time.Time       `json:"estimated_at"`
	Timezone        string          `json:"timezone,omitempty"`
	CalendarLinks   []CalendarLink  `json:"calendar_links,omitempty"`
}

type CalendarLink struct {
	Provider string `json:"provider"`
	URL      string `json:"url"`
}

// CalendarLinksFor builds add-to-calendar URLs for the estimated time.
func CalendarLinksFor(title string, network models.Network, targetHeight int64, estimatedAt time.Time) []CalendarLink {
	if title == "" {
		title = fmt.Sprintf("Block %d on %s", targetHeight, network)
	}
	start := estimatedAt.UTC().Format("20060102T150405Z")
	end := estimatedAt.UTC().Add(10 * time.Minute).Format("20060102T150405Z")
	google := url.Values{
		"action": {"TEMPLATE"},
		"text":   {title},
		"dates":  {start + "/" + end},
	}
	return []CalendarLink{
		{Provider: "google", URL: "https://calendar.google.com/calendar/render?" + google.Encode()},
	}
}
