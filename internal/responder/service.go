package responder

import (
	"context"
	"strings"
	"unicode"

	"github.com/RichardoC/deeptok/internal/prayer"
)

const (
	FallbackReply     = "Saya tidak tahu jawabannya. Coba kamu WhatsApp langsung aja ya!"
	LookupFailedReply = "Maaf, tidak bisa mendapatkan jadwal sholat saat ini."
	AskCityReply      = "Sebutkan nama kotanya ya, misalnya: jadwal sholat jakarta"

	PrayerKeyword = "jadwal sholat"
)

// Rule maps a keyword to a reply. When Answer is set it computes the reply
// from the text following the keyword and Reply is ignored.
type Rule struct {
	Keyword string
	Reply   string
	Answer  func(ctx context.Context, rest string) string
}

// PrayerLookup is satisfied by *prayer.Client.
type PrayerLookup interface {
	Today(ctx context.Context, city string) (prayer.Schedule, error)
}

type Service struct {
	rules    []Rule
	fallback string
}

// New builds a responder over rules. Rules are tried in order.
func New(rules []Rule, fallback string) *Service {
	copied := make([]Rule, len(rules))
	for i, r := range rules {
		r.Keyword = strings.ToLower(r.Keyword)
		copied[i] = r
	}
	return &Service{rules: copied, fallback: fallback}
}

// NewDefault returns the stock DeepTok responder.
func NewDefault(lookup PrayerLookup) *Service {
	return New(DefaultRules(lookup), FallbackReply)
}

func DefaultRules(lookup PrayerLookup) []Rule {
	return []Rule{
		{Keyword: PrayerKeyword, Answer: prayerAnswer(lookup)},
		{Keyword: "halo", Reply: "Halo! Ada yang bisa saya bantu?"},
		{Keyword: "siapa kamu", Reply: "Saya adalah DeepTok yang siap membantu!"},
		{Keyword: "apa kabar", Reply: "Saya baik, bagaimana dengan Anda?"},
		{Keyword: "baik", Reply: "Senang mendengarnya, ada yang bisa dibantu?"},
		{Keyword: "terima kasih", Reply: "Sama-sama! Senang bisa membantu."},
		{Keyword: "bye", Reply: "Sampai jumpa! 😊"},
	}
}

// Respond returns the reply of the first rule, in table order, whose keyword
// occurs anywhere in the utterance.
func (s *Service) Respond(ctx context.Context, utterance string) string {
	input := strings.ToLower(utterance)
	for _, rule := range s.rules {
		idx := strings.Index(input, rule.Keyword)
		if idx < 0 {
			continue
		}
		if rule.Answer != nil {
			return rule.Answer(ctx, input[idx+len(rule.Keyword):])
		}
		return rule.Reply
	}
	return s.fallback
}

func prayerAnswer(lookup PrayerLookup) func(context.Context, string) string {
	return func(ctx context.Context, rest string) string {
		city := cityFrom(rest)
		if city == "" {
			return AskCityReply
		}
		if lookup == nil {
			return LookupFailedReply
		}
		schedule, err := lookup.Today(ctx, city)
		if err != nil {
			return LookupFailedReply
		}
		return prayer.Format(city, schedule)
	}
}

// cityFrom picks the first word after the keyword, skipping a leading "di".
func cityFrom(rest string) string {
	words := strings.FieldsFunc(rest, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	if len(words) > 0 && words[0] == "di" {
		words = words[1:]
	}
	if len(words) == 0 {
		return ""
	}
	return words[0]
}
