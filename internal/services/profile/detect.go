// Package profile derives interests and attitude from a user's message and folds them into the stored profile.
package profile

import (
	"regexp"
	"strings"
	"time"

	"github.com/siegecorps/siegebot/internal/models"
)

type keywordSet struct {
	tag string
	re  *regexp.Regexp
}

func wordStart(words ...string) *regexp.Regexp {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = strings.ReplaceAll(regexp.QuoteMeta(w), " ", `\s+`)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)`)
}

var interestSets = []keywordSet{
	{"anime", wordStart("anime", "manga", "waifu", "otaku", "spirited away", "ghibli")},
	{"gaming", wordStart("game", "gaming", "warhammer", "fps", "mmo", "pc gaming")},
	{"guns", wordStart("gun", "rifle", "pistol", "shooting", "firearms")},
	{"fishing", wordStart("fishing", "fish", "rod", "tackle", "bait")},
	{"music", wordStart("music", "metal", "phonk", "goth", "band")},
	{"conspiracy", wordStart("conspiracy", "flat earth", "mandela effect", "tartaria")},
	{"science", wordStart("science", "physics", "chemistry", "biology", "math")},
	{"history", wordStart("history", "napoleon", "ancient", "medieval")},
}

// attitude tiers, strongest first
var attitudeTiers = []struct {
	attitude models.Attitude
	re       *regexp.Regexp
}{
	{models.AttitudeHostile, wordStart("fuck", "shit", "stupid bot", "stfu", "shut up")},
	{models.AttitudeNegative, wordStart("bad", "sucks", "hate", "stupid", "dumb", "awful")},
	{models.AttitudePositive, wordStart("good", "great", "awesome", "cool", "nice", "thanks", "love")},
}

// DetectInterests returns the interest tags mentioned in text, in declaration order
func DetectInterests(text string) []string {
	var tags []string
	for _, set := range interestSets {
		if set.re.MatchString(text) {
			tags = append(tags, set.tag)
		}
	}
	return tags
}

// DetectAttitude returns the strongest attitude tier matched by text
func DetectAttitude(text string) models.Attitude {
	for _, tier := range attitudeTiers {
		if tier.re.MatchString(text) {
			return tier.attitude
		}
	}
	return models.AttitudeNeutral
}

// Update folds one message into a profile. Attitude reflects only the latest
// message while interests accumulate.
func Update(p models.UserProfile, msg models.InboundMessage, admin models.AdminStatus, now time.Time) models.UserProfile {
	if p.UserID == 0 {
		p.UserID = msg.SenderID
	}
	if p.FirstSeen.IsZero() {
		p.FirstSeen = now
	}
	if msg.SenderUsername != "" {
		p.Username = msg.SenderUsername
	}
	if msg.SenderName != "" {
		p.DisplayName = msg.SenderName
	}
	p.Interests = append([]string(nil), p.Interests...)
	p.AddInterests(DetectInterests(msg.Text)...)
	p.Attitude = DetectAttitude(msg.Text)
	p.IsAdmin = admin.IsAdmin
	p.AdminTitle = admin.Title
	p.MessageCount++
	p.LastSeen = now
	return p
}
