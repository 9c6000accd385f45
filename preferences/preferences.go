// Package preferences resolves the viewer's feed display and moderation
// preferences from the account and the local configuration
package preferences

import (
	"skyweb/config"
	"skyweb/models"
	"skyweb/moderation"

	log "github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// HomeFeed is the feed name the account preferences use for the following timeline
const HomeFeed = "home"

// Lookup answers preference questions for the current viewer
type Lookup interface {
	FollowingFeedPreference() models.FeedViewPreference
	ModerationPolicy() *moderation.Policy
}

// Remote is the subset of app.bsky.actor.getPreferences the client uses
type Remote struct {
	// Feed view preferences keyed by feed, HomeFeed for the following timeline
	Feeds map[string]models.FeedViewPreference
	// Global content label preferences, label value to visibility
	Labels       map[string]moderation.LabelVisibility
	AdultContent *bool
}

// Static is a fixed set of preferences
type Static struct {
	Following models.FeedViewPreference
	Policy    *moderation.Policy
}

var _ Lookup = Static{}
var _ Lookup = (*Live)(nil)

func (s Static) FollowingFeedPreference() models.FeedViewPreference {
	return s.Following
}

func (s Static) ModerationPolicy() *moderation.Policy {
	if s.Policy == nil {
		return moderation.DefaultPolicy()
	}
	return s.Policy
}

// FromConfig builds preferences from configuration only, used for anonymous
// viewers and accounts without stored preferences
func FromConfig(cfg *config.Config) Static {
	policy := moderation.DefaultPolicy()
	policy.AdultContentEnabled = cfg.Moderation.AdultContent
	policy = applyLabels(policy, configLabels(cfg.Moderation.Labels))

	return Static{
		Following: models.FeedViewPreference{
			HideReposts:    cfg.Following.HideReposts,
			HideReplies:    cfg.Following.HideReplies,
			HideQuotePosts: cfg.Following.HideQuotePosts,
		},
		Policy: policy,
	}
}

// FromRemote merges account preferences over the configuration. Labels set in
// the configuration still win over the account.
func FromRemote(remote Remote, cfg *config.Config) Static {
	prefs := FromConfig(cfg)

	if home, ok := remote.Feeds[HomeFeed]; ok {
		prefs.Following = home
	}

	policy := moderation.DefaultPolicy()
	policy.AdultContentEnabled = cfg.Moderation.AdultContent
	if remote.AdultContent != nil {
		policy.AdultContentEnabled = *remote.AdultContent
	}
	policy = applyLabels(policy, remote.Labels)
	policy = applyLabels(policy, configLabels(cfg.Moderation.Labels))
	policy.Authenticated = true

	prefs.Policy = policy
	return prefs
}

// Live holds the preferences of the current session and can be swapped when
// the viewer logs in or the account preferences are refetched
type Live struct {
	current *atomic.Pointer[Static]
}

func NewLive(initial Static) *Live {
	return &Live{current: atomic.NewPointer(&initial)}
}

// Set replaces the preferences
func (l *Live) Set(prefs Static) {
	l.current.Store(&prefs)
}

func (l *Live) Get() Static {
	return *l.current.Load()
}

func (l *Live) FollowingFeedPreference() models.FeedViewPreference {
	return l.Get().FollowingFeedPreference()
}

func (l *Live) ModerationPolicy() *moderation.Policy {
	return l.Get().ModerationPolicy()
}

// ParseVisibility maps a label preference string to a LabelVisibility
func ParseVisibility(value string) (moderation.LabelVisibility, bool) {
	switch v := moderation.LabelVisibility(value); v {
	case moderation.LabelIgnore, moderation.LabelShow, moderation.LabelWarn, moderation.LabelHide:
		return v, true
	}
	return "", false
}

func configLabels(labels map[string]string) map[string]moderation.LabelVisibility {
	out := make(map[string]moderation.LabelVisibility, len(labels))
	for label, value := range labels {
		visibility, ok := ParseVisibility(value)
		if !ok {
			log.WithFields(log.Fields{
				"label": label,
				"value": value,
			}).Warn("Ignoring label preference with unknown visibility")
			continue
		}
		out[label] = visibility
	}
	return out
}

func applyLabels(policy *moderation.Policy, labels map[string]moderation.LabelVisibility) *moderation.Policy {
	for label, visibility := range labels {
		policy = policy.WithLabel(label, visibility)
	}
	return policy
}
