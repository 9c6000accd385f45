// Package moderation turns labels and viewer state into the visibility
// annotation attached to posts
package moderation

import (
	"sort"

	"skyweb/models"
)

// LabelVisibility is a user preference for a label value
type LabelVisibility string

const (
	LabelIgnore LabelVisibility = "ignore"
	LabelShow   LabelVisibility = "show"
	LabelWarn   LabelVisibility = "warn"
	LabelHide   LabelVisibility = "hide"
)

// System labels applied by moderation services
const (
	LabelSystemHide        = "!hide"
	LabelSystemWarn        = "!warn"
	LabelNoUnauthenticated = "!no-unauthenticated"
	LabelPorn              = "porn"
	LabelSexual            = "sexual"
	LabelNudity            = "nudity"
	LabelGraphicMedia      = "graphic-media"
)

var adultLabels = map[string]bool{
	LabelPorn:   true,
	LabelSexual: true,
	LabelNudity: true,
}

var defaultLabels = map[string]LabelVisibility{
	LabelPorn:         LabelWarn,
	LabelSexual:       LabelWarn,
	LabelNudity:       LabelWarn,
	LabelGraphicMedia: LabelWarn,
}

// Label is a label as seen on a post or account view
type Label struct {
	Src string
	Val string
	Neg bool
}

// ViewerState is the viewer's relationship with the author
type ViewerState struct {
	Muted     bool
	BlockedBy bool
	Blocking  bool
}

// Subject is everything needed to decide on one post
type Subject struct {
	PostLabels   []Label
	AuthorLabels []Label
	Viewer       ViewerState
}

// Policy holds the viewer's moderation preferences
type Policy struct {
	AdultContentEnabled bool
	// Per label value preferences, these override the defaults
	Labels map[string]LabelVisibility
	// Anonymous viewers get posts labelled !no-unauthenticated hidden
	Authenticated bool
}

// DefaultPolicy hides adult content and warns on graphic media
func DefaultPolicy() *Policy {
	return &Policy{Labels: map[string]LabelVisibility{}}
}

// WithLabel returns a copy of the policy with a label preference set
func (p *Policy) WithLabel(label string, visibility LabelVisibility) *Policy {
	labels := make(map[string]LabelVisibility, len(p.Labels)+1)
	for k, v := range p.Labels {
		labels[k] = v
	}
	labels[label] = visibility

	cp := *p
	cp.Labels = labels
	return &cp
}

// Decide returns the moderation annotation for a subject, or nil when the
// post can be shown as is
func (p *Policy) Decide(subject Subject) *models.Moderation {
	if p == nil {
		p = DefaultPolicy()
	}

	visibility := models.VisibilityNone
	causes := map[string]struct{}{}

	raise := func(v models.Visibility, cause string) {
		if severity(v) == 0 {
			return
		}
		causes[cause] = struct{}{}
		if severity(v) > severity(visibility) {
			visibility = v
		}
	}

	if subject.Viewer.Muted {
		raise(models.VisibilityHide, "muted")
	}
	if subject.Viewer.BlockedBy {
		raise(models.VisibilityHide, "blocked-by")
	}
	if subject.Viewer.Blocking {
		raise(models.VisibilityHide, "blocking")
	}

	for _, val := range activeLabels(subject.PostLabels, subject.AuthorLabels) {
		raise(p.labelOutcome(val), val)
	}

	if visibility == models.VisibilityNone {
		return nil
	}

	list := make([]string, 0, len(causes))
	for cause := range causes {
		list = append(list, cause)
	}
	sort.Strings(list)

	return &models.Moderation{Visibility: visibility, Causes: list}
}

func (p *Policy) labelOutcome(val string) models.Visibility {
	switch val {
	case LabelSystemHide:
		return models.VisibilityHide
	case LabelSystemWarn:
		return models.VisibilityWarn
	case LabelNoUnauthenticated:
		if p.Authenticated {
			return models.VisibilityNone
		}
		return models.VisibilityHide
	}

	if adultLabels[val] && !p.AdultContentEnabled {
		return models.VisibilityHide
	}

	pref, ok := p.Labels[val]
	if !ok {
		pref, ok = defaultLabels[val]
	}
	if !ok {
		return models.VisibilityNone
	}

	switch pref {
	case LabelHide:
		return models.VisibilityHide
	case LabelWarn:
		return models.VisibilityWarn
	default:
		return models.VisibilityNone
	}
}

// activeLabels applies negations in order. A negation removes an earlier
// label with the same value from the same source.
func activeLabels(sets ...[]Label) []string {
	type key struct{ src, val string }

	active := map[key]bool{}
	order := []key{}

	for _, labels := range sets {
		for _, l := range labels {
			k := key{l.Src, l.Val}
			if l.Neg {
				delete(active, k)
				continue
			}
			if !active[k] {
				order = append(order, k)
			}
			active[k] = true
		}
	}

	vals := []string{}
	seen := map[string]bool{}
	for _, k := range order {
		if active[k] && !seen[k.val] {
			seen[k.val] = true
			vals = append(vals, k.val)
		}
	}
	return vals
}

func severity(v models.Visibility) int {
	switch v {
	case models.VisibilityHide:
		return 2
	case models.VisibilityWarn:
		return 1
	default:
		return 0
	}
}
