package service

import (
	"regexp"
	"strings"
)

// QuestionType 是问题的信息类型，决定抽取方式与远程生成的指令。
type QuestionType string

const (
	QuestionEmail      QuestionType = "email"
	QuestionAddress    QuestionType = "address"
	QuestionPhone      QuestionType = "phone"
	QuestionBirthdate  QuestionType = "birthdate"
	QuestionName       QuestionType = "name"
	QuestionProfession QuestionType = "profession"
	QuestionGeneral    QuestionType = "general"
)

var telWord = regexp.MustCompile(`\btel\b`)

type typeRule struct {
	qt      QuestionType
	matches func(q string) bool
}

// 按顺序判断，第一个命中的规则生效。email 必须排在 address 之前。
var questionRules = []typeRule{
	{QuestionEmail, func(q string) bool {
		return containsAny(q, "email", "e-mail", "mail")
	}},
	{QuestionAddress, func(q string) bool {
		return containsAny(q, "adresse", "wohn", "anschrift") && !strings.Contains(q, "email")
	}},
	{QuestionPhone, func(q string) bool {
		return containsAny(q, "telefon", "nummer", "handy", "mobil") || telWord.MatchString(q)
	}},
	{QuestionBirthdate, func(q string) bool {
		return containsAny(q, "geburt", "geboren", "alter")
	}},
	{QuestionName, func(q string) bool {
		return containsAny(q, "name", "heiße", "heißt")
	}},
	{QuestionProfession, func(q string) bool {
		return containsAny(q, "beruf", "arbeit", "stelle", "position", "tätigkeit")
	}},
}

// ClassifyQuestion 把问题映射到一个 QuestionType，未命中任何规则时为 general。
func ClassifyQuestion(question string) QuestionType {
	q := strings.ToLower(question)
	for _, rule := range questionRules {
		if rule.matches(q) {
			return rule.qt
		}
	}
	return QuestionGeneral
}

// questionWords 返回问题中长度大于 3 的词，已转小写并去掉首尾标点。
func questionWords(question string) []string {
	var words []string
	for _, w := range strings.Fields(strings.ToLower(question)) {
		w = strings.Trim(w, `?!.,;:"'()`)
		if len([]rune(w)) > 3 {
			words = append(words, w)
		}
	}
	return words
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
