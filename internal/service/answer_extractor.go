package service

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	emailPattern      = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	sentenceSeparator = regexp.MustCompile(`[.!?]\s+`)
)

// AddressPatterns 是地址抽取使用的正则。Full 匹配完整地址，Street 只匹配街道和门牌号，
// 命中 Street 时返回其前 Before 个、后 After 个字符范围内的文本。
type AddressPatterns struct {
	Full   *regexp.Regexp
	Street *regexp.Regexp
	Before int
	After  int
}

// GermanAddressPatterns 匹配德国地址格式：街道后缀 + 门牌号，五位邮编 + 城市。
func GermanAddressPatterns() AddressPatterns {
	const street = `[A-ZÄÖÜ][a-zäöüß]+(?:straße|str\.|weg|platz|allee|ring|gasse|damm|ufer)\s+\d+[a-z]?`
	return AddressPatterns{
		Full:   regexp.MustCompile(`(?i)(` + street + `[,\s]+)?(\d{5})\s+([A-ZÄÖÜ][a-zäöüß]+(?:stadt|dorf|hausen)?)`),
		Street: regexp.MustCompile(`(?i)` + street),
		Before: 10,
		After:  50,
	}
}

// 各类型在文本中查找的关键词
var typeKeywords = map[QuestionType][]string{
	QuestionAddress:    {"straße", "str.", "weg", "platz", "adresse", "wohnort", "wohne", "wohnhaft", "strasse"},
	QuestionEmail:      {"@", "email", "e-mail", "mail"},
	QuestionPhone:      {"telefon", "tel.", "mobil", "handy", "+49", "+43", "+41"},
	QuestionBirthdate:  {"geboren", "geburt", "geburtstag", "geb."},
	QuestionName:       {"name", "vorname", "nachname"},
	QuestionProfession: {"beruf", "arbeit", "position", "stelle", "tätigkeit"},
}

const (
	windowWords     = 20
	windowMinTail   = 10
	expandedWords   = 30
	maxWindowRunes  = 200
	lastResortRunes = 300
)

// SectionExtractor 从单个分块中抽取与问题最相关的片段。
type SectionExtractor struct {
	address AddressPatterns
}

// NewSectionExtractor 使用给定的地址正则创建 SectionExtractor。
func NewSectionExtractor(address AddressPatterns) *SectionExtractor {
	return &SectionExtractor{address: address}
}

var defaultSectionExtractor = NewSectionExtractor(GermanAddressPatterns())

// ExtractRelevantSection 使用德国地址格式抽取片段。
func ExtractRelevantSection(question, text string) string {
	return defaultSectionExtractor.Extract(question, text)
}

// Extract 总是返回一段文本：依次尝试模式匹配、关键词句子、关键词窗口，最后返回文本开头。
func (e *SectionExtractor) Extract(question, text string) string {
	qt := ClassifyQuestion(question)

	switch qt {
	case QuestionEmail:
		if m := emailPattern.FindString(text); m != "" {
			return strings.TrimSpace(m)
		}
	case QuestionAddress:
		if addr := e.extractAddress(text); addr != "" {
			return addr
		}
	}

	keywords, ok := typeKeywords[qt]
	if !ok {
		keywords = questionWords(question)
	}

	if answer := matchingSentences(text, keywords); answer != "" {
		return answer
	}
	if answer := bestWindow(text, keywords); answer != "" {
		return answer
	}
	return truncateRunes(text, lastResortRunes)
}

func (e *SectionExtractor) extractAddress(text string) string {
	if e.address.Full != nil {
		if m := e.address.Full.FindString(text); m != "" {
			return strings.TrimSpace(m)
		}
	}
	if e.address.Street == nil {
		return ""
	}
	loc := e.address.Street.FindStringIndex(text)
	if loc == nil {
		return ""
	}
	runes := []rune(text)
	start := utf8.RuneCountInString(text[:loc[0]]) - e.address.Before
	end := utf8.RuneCountInString(text[:loc[1]]) + e.address.After
	if start < 0 {
		start = 0
	}
	if end > len(runes) {
		end = len(runes)
	}
	return strings.TrimSpace(string(runes[start:end]))
}

// matchingSentences 返回最多 3 个包含关键词的句子，以句号结尾。
func matchingSentences(text string, keywords []string) string {
	if len(keywords) == 0 {
		return ""
	}
	var matched []string
	for _, sentence := range sentenceSeparator.Split(text, -1) {
		if containsAny(strings.ToLower(sentence), keywords...) {
			matched = append(matched, strings.TrimSpace(sentence))
			if len(matched) == 3 {
				break
			}
		}
	}
	if len(matched) == 0 {
		return ""
	}
	answer := strings.Join(matched, ". ")
	if !strings.HasSuffix(answer, ".") && !strings.HasSuffix(answer, "!") && !strings.HasSuffix(answer, "?") {
		answer += "."
	}
	return answer
}

// bestWindow 用 20 个词的滑动窗口找关键词最多的位置，返回从该位置开始的 30 个词。
func bestWindow(text string, keywords []string) string {
	words := strings.Fields(text)
	bestStart, bestScore := 0, 0
	for i := 0; i < len(words)-windowMinTail; i++ {
		end := i + windowWords
		if end > len(words) {
			end = len(words)
		}
		window := strings.ToLower(strings.Join(words[i:end], " "))
		score := 0
		for _, k := range keywords {
			if strings.Contains(window, k) {
				score++
			}
		}
		if score > bestScore {
			bestScore, bestStart = score, i
		}
	}
	if bestScore == 0 {
		return ""
	}
	end := bestStart + expandedWords
	if end > len(words) {
		end = len(words)
	}
	return truncateRunes(strings.Join(words[bestStart:end], " "), maxWindowRunes)
}

// truncateRunes 超过 limit 个字符时截断并追加省略号。
func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
