package chatwatch

import (
	"fmt"
	"strings"
)

// Feature identifies one toggleable annotation feature.
type Feature uint8

const (
	FeatureMentions Feature = iota
	FeatureHighlighting
	FeatureSeparator
	FeaturePins
	FeatureKeywords
)

// Features lists every feature in dispatch order. Pins must run before
// keywords so that pinned messages are recognised before keyword styling.
var Features = []Feature{
	FeatureMentions,
	FeatureHighlighting,
	FeatureSeparator,
	FeaturePins,
	FeatureKeywords,
}

func (f Feature) String() string {
	switch f {
	case FeatureMentions:
		return "mentions"
	case FeatureHighlighting:
		return "highlighting"
	case FeatureSeparator:
		return "separator"
	case FeaturePins:
		return "pins"
	case FeatureKeywords:
		return "keywords"
	}
	return fmt.Sprintf("feature(%d)", uint8(f))
}

// Persistent reports whether the feature's toggle survives a reload. Pins are
// memory-only.
func (f Feature) Persistent() bool {
	return f != FeaturePins
}

// ParseFeature returns the feature with the given name.
func ParseFeature(name string) (Feature, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, f := range Features {
		if f.String() == name {
			return f, nil
		}
	}
	switch name {
	case "highlight", "self":
		return FeatureHighlighting, nil
	case "mention":
		return FeatureMentions, nil
	case "keyword", "items":
		return FeatureKeywords, nil
	case "pin":
		return FeaturePins, nil
	case "sessions", "divider":
		return FeatureSeparator, nil
	}
	return 0, fmt.Errorf("unknown feature %q", name)
}

// FeatureSet is a set of enabled features.
type FeatureSet uint8

func (s FeatureSet) Has(f Feature) bool { return s&(1<<f) != 0 }

func (s FeatureSet) With(f Feature) FeatureSet { return s | 1<<f }

func (s FeatureSet) Without(f Feature) FeatureSet { return s &^ (1 << f) }

// Empty reports whether no feature is enabled.
func (s FeatureSet) Empty() bool { return s == 0 }

// Names returns the enabled feature names in dispatch order.
func (s FeatureSet) Names() []string {
	names := []string{}
	for _, f := range Features {
		if s.Has(f) {
			names = append(names, f.String())
		}
	}
	return names
}
