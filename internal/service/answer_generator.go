package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"pdf-faq-go/internal/config"
	"pdf-faq-go/internal/model"
	"pdf-faq-go/pkg/llm"
	"pdf-faq-go/pkg/log"
)

// NotFoundAnswer 是没有相关分块时返回的固定答案。
const NotFoundAnswer = "Nicht im Dokument enthalten"

const (
	maxContextChunks = 5
	maxAnswerRunes   = 500
	shortExtraction  = 100
)

// Answer 是最终答案及其来源。
type Answer struct {
	Text           string
	SourceDocument *string
	SourcePage     *int
	RelevantChunks int
}

// AnswerGenerator 根据问题和排好序的相关分块生成答案。
type AnswerGenerator interface {
	Generate(ctx context.Context, question string, chunks []model.RelevantChunk) (Answer, error)
}

// ErrorRecorder 记录被吞掉的错误，通常就是 RecordStore。
type ErrorRecorder interface {
	LogError(ctx context.Context, message string, trace *string) error
}

func notFound() Answer {
	return Answer{Text: NotFoundAnswer}
}

func answerFrom(text string, chunk model.RelevantChunk, count int) Answer {
	name := chunk.DocumentName
	return Answer{Text: text, SourceDocument: &name, SourcePage: chunk.PageNumber, RelevantChunks: count}
}

// LocalGenerator 基于规则从分块中抽取答案，总是可用。
type LocalGenerator struct {
	extractor *SectionExtractor
}

// NewLocalGenerator 创建 LocalGenerator，extractor 为 nil 时使用德国地址格式。
func NewLocalGenerator(extractor *SectionExtractor) *LocalGenerator {
	if extractor == nil {
		extractor = defaultSectionExtractor
	}
	return &LocalGenerator{extractor: extractor}
}

// Generate 按排名依次抽取，接受第一个包含问题关键词或足够短的结果，否则使用排名第一的分块。
func (g *LocalGenerator) Generate(_ context.Context, question string, chunks []model.RelevantChunk) (Answer, error) {
	if len(chunks) == 0 {
		return notFound(), nil
	}

	words := questionWords(question)
	best := chunks[0]
	var extracted string
	found := false
	for _, chunk := range chunks {
		candidate := g.extractor.Extract(question, chunk.Text)
		if containsAny(strings.ToLower(candidate), words...) || utf8.RuneCountInString(candidate) < shortExtraction {
			best, extracted, found = chunk, candidate, true
			break
		}
	}
	if !found {
		extracted = g.extractor.Extract(question, best.Text)
	}

	text := truncateRunes(strings.TrimSpace(extracted), maxAnswerRunes)
	return answerFrom(text, best, len(chunks)), nil
}

const systemPrompt = "Du bist ein präziser Dokumenten-Assistent. Du extrahierst gezielt spezifische Informationen aus Dokumenten und gibst nur die direkte Antwort zurück."

const userPromptTemplate = `Du analysierst ein Dokument und beantwortest Fragen präzise.

Dokumenteninhalt:
%s

Frage: %s

Anweisung: %s

WICHTIG:
- Suche gezielt nach der gesuchten Information im Dokumenteninhalt
- Gib NUR die direkte Antwort zurück, keine Erklärungen
- Wenn die Information nicht im Dokument steht, antworte: "` + NotFoundAnswer + `"
- Sei präzise und kurz`

var typeInstructions = map[QuestionType]string{
	QuestionEmail:      "Extrahiere NUR die E-Mail-Adresse. Suche nach Mustern wie name@domain.com. Gib nur die E-Mail-Adresse zurück, nichts anderes.",
	QuestionAddress:    "Extrahiere NUR die Adresse (Straße, Hausnummer, PLZ, Ort). Gib nur die vollständige Adresse zurück.",
	QuestionPhone:      "Extrahiere NUR die Telefonnummer. Gib nur die Nummer zurück, nichts anderes.",
	QuestionBirthdate:  "Extrahiere NUR das Geburtsdatum. Gib nur das Datum zurück.",
	QuestionName:       "Extrahiere NUR den Namen. Gib nur Vor- und Nachname zurück.",
	QuestionProfession: "Extrahiere NUR die Berufsbezeichnung oder Position. Gib nur diese Information zurück.",
	QuestionGeneral:    "Antworte präzise und kurz. Extrahiere nur die relevante Information, die die Frage beantwortet.",
}

// RemoteGenerator 调用大模型生成答案，失败时返回错误。
type RemoteGenerator struct {
	client  llm.Client
	params  llm.GenerationParams
	timeout time.Duration
}

// NewRemoteGenerator 创建 RemoteGenerator，timeout 为 0 表示不限制。
func NewRemoteGenerator(client llm.Client, gen config.LLMGenerationConfig, timeout time.Duration) *RemoteGenerator {
	temperature, maxTokens := gen.Temperature, gen.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 200
	}
	return &RemoteGenerator{
		client:  client,
		params:  llm.GenerationParams{Temperature: &temperature, MaxTokens: &maxTokens},
		timeout: timeout,
	}
}

// BuildPrompt 返回发送给大模型的消息。
func BuildPrompt(question string, chunks []model.RelevantChunk) []llm.Message {
	n := len(chunks)
	if n > maxContextChunks {
		n = maxContextChunks
	}
	parts := make([]string, 0, n)
	for _, c := range chunks[:n] {
		parts = append(parts, c.Text)
	}
	instruction := typeInstructions[ClassifyQuestion(question)]
	return []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: fmt.Sprintf(userPromptTemplate, strings.Join(parts, "\n\n"), question, instruction)},
	}
}

func (g *RemoteGenerator) Generate(ctx context.Context, question string, chunks []model.RelevantChunk) (Answer, error) {
	if len(chunks) == 0 {
		return notFound(), nil
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	raw, err := g.client.Complete(ctx, BuildPrompt(question, chunks), &g.params)
	if err != nil {
		return Answer{}, err
	}
	text := stripQuotes(strings.TrimSpace(raw))
	if strings.TrimSpace(text) == "" {
		return Answer{}, llm.ErrEmptyCompletion
	}
	return answerFrom(text, chunks[0], len(chunks)), nil
}

func stripQuotes(s string) string {
	for _, q := range []string{`"`, `'`} {
		if len(s) >= 2 && strings.HasPrefix(s, q) && strings.HasSuffix(s, q) {
			s = s[1 : len(s)-1]
		}
	}
	return s
}

// FallbackGenerator 优先使用远程生成，失败时记录错误并改用本地抽取。
type FallbackGenerator struct {
	remote AnswerGenerator
	local  AnswerGenerator
	errs   ErrorRecorder
}

// NewFallbackGenerator 创建 FallbackGenerator，errs 可以为 nil。
func NewFallbackGenerator(remote, local AnswerGenerator, errs ErrorRecorder) *FallbackGenerator {
	return &FallbackGenerator{remote: remote, local: local, errs: errs}
}

func (g *FallbackGenerator) Generate(ctx context.Context, question string, chunks []model.RelevantChunk) (Answer, error) {
	if len(chunks) == 0 {
		return notFound(), nil
	}
	answer, err := g.remote.Generate(ctx, question, chunks)
	if err == nil {
		return answer, nil
	}

	log.Warnf("[AnswerGenerator] 远程生成失败, 使用本地抽取: %v", err)
	if g.errs != nil {
		msg := fmt.Sprintf("LLM API Error: %v", err)
		if errors.Is(err, context.DeadlineExceeded) {
			msg = fmt.Sprintf("LLM API Timeout: %v", err)
		}
		// 使用独立的 ctx，请求 ctx 超时后仍然可以写入
		if logErr := g.errs.LogError(context.WithoutCancel(ctx), msg, nil); logErr != nil {
			log.Warnf("[AnswerGenerator] 写入错误日志失败: %v", logErr)
		}
	}
	return g.local.Generate(ctx, question, chunks)
}

// NewAnswerGenerator 配置了大模型凭证时返回远程优先的生成器，否则只使用本地抽取。
func NewAnswerGenerator(cfg config.LLMConfig, client llm.Client, errs ErrorRecorder) AnswerGenerator {
	local := NewLocalGenerator(nil)
	if !cfg.RemoteEnabled() || client == nil {
		log.Info("[AnswerGenerator] 未配置大模型, 使用本地抽取")
		return local
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	log.Infof("[AnswerGenerator] 使用大模型 %s 生成答案, 超时: %s", cfg.Model, timeout)
	return NewFallbackGenerator(NewRemoteGenerator(client, cfg.Generation, timeout), local, errs)
}
