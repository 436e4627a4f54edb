package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"pdf-faq-go/internal/config"
	"pdf-faq-go/internal/model"
	"pdf-faq-go/internal/repository"
	"pdf-faq-go/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyQuestion(t *testing.T) {
	cases := []struct {
		question string
		want     QuestionType
	}{
		{"Wie lautet meine E-Mail-Adresse?", QuestionEmail},
		{"Welche Email hat er?", QuestionEmail},
		{"Wo wohnt er?", QuestionAddress},
		{"Wie ist die Anschrift?", QuestionAddress},
		{"Was ist seine Handynummer?", QuestionPhone},
		{"Tel von Max?", QuestionPhone},
		{"Wann ist er geboren?", QuestionBirthdate},
		{"Welches Alter hat er?", QuestionBirthdate},
		{"Wie heißt er?", QuestionName},
		{"Was ist sein Beruf?", QuestionProfession},
		{"Welche Tätigkeit übt sie aus?", QuestionProfession},
		{"Was macht er gerne?", QuestionGeneral},
		{"Gibt es ein Hotel in Berlin?", QuestionGeneral},
	}
	for _, tc := range cases {
		t.Run(tc.question, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyQuestion(tc.question))
		})
	}
}

const profile = "Hans Müller wohnt in der Musterstraße 5, 12345 Musterstadt. Seine E-Mail ist hans@example.com."

func TestExtractRelevantSection_Email(t *testing.T) {
	assert.Equal(t, "hans@example.com", ExtractRelevantSection("Wie ist die E-Mail-Adresse?", profile))
}

func TestExtractRelevantSection_FullAddress(t *testing.T) {
	assert.Equal(t, "Musterstraße 5, 12345 Musterstadt", ExtractRelevantSection("Wo wohnt er?", profile))
}

func TestExtractRelevantSection_StreetWindow(t *testing.T) {
	text := "Kontaktdaten für Rückfragen: Lindenallee 12, danach folgt ein sehr langer Text über ganz andere Dinge im Leben."
	got := ExtractRelevantSection("Wie lautet die Adresse?", text)
	assert.Contains(t, got, "Lindenallee 12")
	assert.LessOrEqual(t, utf8.RuneCountInString(got), 10+len("Lindenallee 12")+50)
	assert.NotEqual(t, text, got)
}

func TestExtractRelevantSection_KeywordSentences(t *testing.T) {
	text := "Max ist Entwickler. Telefon: +49 30 1234567. Er mag Kaffee."
	assert.Equal(t, "Telefon: +49 30 1234567.", ExtractRelevantSection("Wie ist seine Telefonnummer?", text))
}

func TestExtractRelevantSection_AtMostThreeSentences(t *testing.T) {
	text := "Beruf eins. Beruf zwei. Beruf drei. Beruf vier."
	assert.Equal(t, "Beruf eins. Beruf zwei. Beruf drei.", ExtractRelevantSection("Was ist sein Beruf?", text))
}

func TestExtractRelevantSection_WordWindow(t *testing.T) {
	text := "Sie erreichen mich am besten unter Tel. 0301234 oder per Post an die bekannte Anschrift in Berlin"
	assert.Equal(t, text, ExtractRelevantSection("Wie ist die Telefonnummer?", text))
}

func TestExtractRelevantSection_LastResort(t *testing.T) {
	text := strings.Repeat("a", 400)
	got := ExtractRelevantSection("Was?", text)
	assert.Equal(t, strings.Repeat("a", 300)+"...", got)

	assert.Equal(t, "kurz", ExtractRelevantSection("Was?", "kurz"))
}

func TestSectionExtractor_PluggableAddressPatterns(t *testing.T) {
	patterns := GermanAddressPatterns()
	patterns.Full = nil
	patterns.Street = nil
	e := NewSectionExtractor(patterns)

	got := e.Extract("Wo wohnt er?", profile)
	assert.NotEqual(t, "Musterstraße 5, 12345 Musterstadt", got)
	assert.Contains(t, got, "wohnt")
}

func chunk(name string, page int, text string) model.RelevantChunk {
	p := page
	return model.RelevantChunk{DocumentName: name, PageNumber: &p, Text: text}
}

func TestLocalGenerator_NoChunks(t *testing.T) {
	answer, err := NewLocalGenerator(nil).Generate(context.Background(), "Wer?", nil)
	require.NoError(t, err)
	assert.Equal(t, NotFoundAnswer, answer.Text)
	assert.Nil(t, answer.SourceDocument)
	assert.Nil(t, answer.SourcePage)
	assert.Zero(t, answer.RelevantChunks)
}

func TestLocalGenerator_AcceptsFirstQualifyingChunk(t *testing.T) {
	chunks := []model.RelevantChunk{
		chunk("a.pdf", 1, strings.Repeat("irrelevant ", 40)),
		chunk("b.pdf", 3, "Seine Hobbys sind Lesen und Wandern."),
	}
	answer, err := NewLocalGenerator(nil).Generate(context.Background(), "Welche Hobbys?", chunks)
	require.NoError(t, err)
	assert.Equal(t, "Seine Hobbys sind Lesen und Wandern.", answer.Text)
	require.NotNil(t, answer.SourceDocument)
	assert.Equal(t, "b.pdf", *answer.SourceDocument)
	assert.Equal(t, 3, *answer.SourcePage)
	assert.Equal(t, 2, answer.RelevantChunks)
}

func TestLocalGenerator_FallsBackToFirstChunk(t *testing.T) {
	chunks := []model.RelevantChunk{
		chunk("a.pdf", 1, strings.Repeat("x", 400)),
		chunk("b.pdf", 2, strings.Repeat("y", 400)),
	}
	answer, err := NewLocalGenerator(nil).Generate(context.Background(), "Welche Hobbys?", chunks)
	require.NoError(t, err)
	assert.Equal(t, "a.pdf", *answer.SourceDocument)
	assert.True(t, strings.HasPrefix(answer.Text, "xxx"))
}

func TestLocalGenerator_TruncatesLongAnswers(t *testing.T) {
	sentence := "Hobbys " + strings.Repeat("z", 300)
	text := sentence + ". " + sentence + ". " + sentence + "."
	answer, err := NewLocalGenerator(nil).Generate(context.Background(), "Welche Hobbys?", []model.RelevantChunk{chunk("a.pdf", 1, text)})
	require.NoError(t, err)
	assert.Equal(t, 503, utf8.RuneCountInString(answer.Text))
	assert.True(t, strings.HasSuffix(answer.Text, "..."))
}

type fakeLLM struct {
	mu       sync.Mutex
	reply    string
	err      error
	block    bool
	messages []llm.Message
	params   *llm.GenerationParams
}

func (f *fakeLLM) Complete(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams) (string, error) {
	f.mu.Lock()
	f.messages, f.params = messages, gen
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.reply, f.err
}

func generation() config.LLMGenerationConfig {
	return config.LLMGenerationConfig{Temperature: 0.1, MaxTokens: 200}
}

func TestRemoteGenerator_BuildsPromptAndStripsQuotes(t *testing.T) {
	client := &fakeLLM{reply: ` "hans@example.com" `}
	var chunks []model.RelevantChunk
	for i := 1; i <= 6; i++ {
		chunks = append(chunks, chunk("cv.pdf", i, "Abschnitt "+strings.Repeat("#", i)))
	}

	answer, err := NewRemoteGenerator(client, generation(), 0).Generate(context.Background(), "Wie ist die E-Mail?", chunks)
	require.NoError(t, err)
	assert.Equal(t, "hans@example.com", answer.Text)
	assert.Equal(t, 1, *answer.SourcePage)
	assert.Equal(t, 6, answer.RelevantChunks)

	require.Len(t, client.messages, 2)
	assert.Equal(t, "system", client.messages[0].Role)
	assert.Equal(t, systemPrompt, client.messages[0].Content)
	user := client.messages[1].Content
	assert.Contains(t, user, "Extrahiere NUR die E-Mail-Adresse")
	assert.Contains(t, user, "Frage: Wie ist die E-Mail?")
	assert.Contains(t, user, "Abschnitt #####\n")
	assert.NotContains(t, user, "Abschnitt ######")
	assert.InDelta(t, 0.1, *client.params.Temperature, 1e-9)
	assert.Equal(t, 200, *client.params.MaxTokens)
}

func TestRemoteGenerator_EmptyOutputIsError(t *testing.T) {
	client := &fakeLLM{reply: `""`}
	_, err := NewRemoteGenerator(client, generation(), 0).Generate(context.Background(), "Wer?", []model.RelevantChunk{chunk("a", 1, "x")})
	assert.ErrorIs(t, err, llm.ErrEmptyCompletion)
}

func TestFallbackGenerator_RemoteFailureUsesLocalAndLogs(t *testing.T) {
	store := repository.NewMemoryRecordStore()
	remote := NewRemoteGenerator(&fakeLLM{err: errors.New("connection refused")}, generation(), 0)
	gen := NewFallbackGenerator(remote, NewLocalGenerator(nil), store)

	answer, err := gen.Generate(context.Background(), "Wie ist die E-Mail-Adresse?", []model.RelevantChunk{chunk("cv.pdf", 1, profile)})
	require.NoError(t, err)
	assert.Equal(t, "hans@example.com", answer.Text)

	logs := store.ErrorLogs()
	require.Len(t, logs, 1)
	assert.Contains(t, logs[0].Message, "connection refused")
}

func TestFallbackGenerator_TimeoutCountsAsFailure(t *testing.T) {
	store := repository.NewMemoryRecordStore()
	remote := NewRemoteGenerator(&fakeLLM{block: true}, generation(), 20*time.Millisecond)
	gen := NewFallbackGenerator(remote, NewLocalGenerator(nil), store)

	answer, err := gen.Generate(context.Background(), "Wo wohnt er?", []model.RelevantChunk{chunk("cv.pdf", 1, profile)})
	require.NoError(t, err)
	assert.Equal(t, "Musterstraße 5, 12345 Musterstadt", answer.Text)
	require.Len(t, store.ErrorLogs(), 1)
	assert.Contains(t, store.ErrorLogs()[0].Message, "Timeout")
}

func TestNewAnswerGenerator_SelectsStrategy(t *testing.T) {
	client := &fakeLLM{reply: "x"}

	gen := NewAnswerGenerator(config.LLMConfig{}, client, nil)
	assert.IsType(t, &LocalGenerator{}, gen)

	gen = NewAnswerGenerator(config.LLMConfig{APIKey: "k", Model: "gpt-4o-mini"}, client, nil)
	assert.IsType(t, &FallbackGenerator{}, gen)

	gen = NewAnswerGenerator(config.LLMConfig{APIKey: "k", Model: "gpt-4o-mini"}, nil, nil)
	assert.IsType(t, &LocalGenerator{}, gen)
}
