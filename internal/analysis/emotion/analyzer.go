package emotion

import (
	"unicode"
)

// Label 表示关键词引擎可识别的情绪标签。
type Label string

const (
	Joyful     Label = "joyful"
	Melancholy Label = "melancholy"
	Fierce     Label = "fierce"
	Excited    Label = "excited"
	Pensive    Label = "pensive"
	Serene     Label = "serene"
	Agitated   Label = "agitated"
	Passionate Label = "passionate"
	Hopeful    Label = "hopeful"
	Anxious    Label = "anxious"
	Content    Label = "content"
	Curious    Label = "curious"
)

// Spectrum 将情绪标签归入冷色、暖色或中性色系。
type Spectrum string

const (
	Cool    Spectrum = "cool"
	Warm    Spectrum = "warm"
	Neutral Spectrum = "neutral"
)

// NeutralColor 在文本中读不出情绪时使用。
const NeutralColor = "#888888"

const keywordScore = 0.85

// Style 描述情绪标签的展示样式。
type Style struct {
	Color     string
	Spectrum  Spectrum
	Intensity float64
}

// styles 中每个色系的第一项即该色系的代表色。
var styles = []struct {
	Label Label
	Style Style
}{
	{Melancholy, Style{"#5C7CFA", Cool, 0.8}},
	{Pensive, Style{"#13C2C2", Cool, 0.6}},
	{Serene, Style{"#48C9B0", Cool, 0.3}},
	{Anxious, Style{"#722ED1", Cool, 0.7}},
	{Fierce, Style{"#F5222D", Warm, 1.0}},
	{Passionate, Style{"#FA541C", Warm, 0.9}},
	{Excited, Style{"#FA8C16", Warm, 0.8}},
	{Agitated, Style{"#FF7A45", Warm, 0.7}},
	{Joyful, Style{"#FADB14", Neutral, 0.6}},
	{Content, Style{"#A0D911", Neutral, 0.4}},
	{Hopeful, Style{"#52C41A", Neutral, 0.5}},
	{Curious, Style{"#FFC53D", Neutral, 0.5}},
}

var keywordBuckets = []struct {
	Label    Label
	Keywords []string
}{
	{Joyful, []string{"happy", "joy", "joyful", "glad", "delighted", "cheerful", "elated", "euphoric", "bliss", "gleeful"}},
	{Melancholy, []string{"sad", "unhappy", "depressed", "down", "blue", "gloomy", "somber", "sorrowful", "dejected", "despondent"}},
	{Fierce, []string{"angry", "mad", "furious", "rage", "livid", "irate", "wrathful", "incensed", "outraged"}},
	{Excited, []string{"excited", "thrilled", "pumped", "energetic", "enthusiastic", "exhilarated", "animated", "vibrant"}},
	{Pensive, []string{"thoughtful", "contemplative", "reflective", "introspective", "meditative", "pondering", "wondering"}},
	{Serene, []string{"calm", "peaceful", "serene", "relaxed", "tranquil", "placid", "still", "quiet", "zen"}},
	{Agitated, []string{"frustrated", "annoyed", "irritated", "agitated", "restless", "tense", "stressed", "bothered"}},
	{Passionate, []string{"passionate", "intense", "fervent", "ardent", "zealous", "devoted", "burning", "fiery"}},
	{Hopeful, []string{"hopeful", "optimistic", "positive", "confident", "encouraged", "upbeat", "bright"}},
	{Anxious, []string{"worried", "anxious", "nervous", "uneasy", "concerned", "apprehensive", "troubled", "distressed", "scared"}},
	{Content, []string{"content", "satisfied", "pleased", "comfortable", "at ease", "settled", "fulfilled"}},
	{Curious, []string{"curious", "interested", "intrigued", "fascinated", "wondering", "questioning", "exploring"}},
}

// Entity 表示一次关键词命中，偏移量按字符(rune)计算。
type Entity struct {
	Text  string  `json:"text"`
	Label Label   `json:"label"`
	Start int     `json:"start"`
	End   int     `json:"end"`
	Score float64 `json:"score"`
}

// Highlight 是附带展示颜色的 Entity。
type Highlight struct {
	Start int     `json:"start"`
	End   int     `json:"end"`
	Text  string  `json:"text"`
	Label Label   `json:"label"`
	Color string  `json:"color"`
	Score float64 `json:"score"`
}

// Mood 汇总文本中所有命中得到的主导情绪。
type Mood struct {
	Spectrum   Spectrum `json:"spectrum"`
	Intensity  float64  `json:"intensity"`
	Color      string   `json:"color"`
	Confidence float64  `json:"confidence,omitempty"`
}

// EntitySummary 是命中在实体列表中的展示形式。
type EntitySummary struct {
	Text  string  `json:"text"`
	Label Label   `json:"label"`
	Score float64 `json:"score"`
}

// Report 是一段文本的完整分析结果，供界面展示。
type Report struct {
	Text       string          `json:"text"`
	Highlights []Highlight     `json:"highlights"`
	Mood       *Mood           `json:"mood"`
	Entities   []EntitySummary `json:"entities"`
}

// StyleFor 返回情绪标签对应的样式。
func StyleFor(label Label) (Style, bool) {
	for _, s := range styles {
		if s.Label == label {
			return s.Style, true
		}
	}
	return Style{}, false
}

// Analyze 从文本中提取情绪关键词并推断主导情绪。
func Analyze(text string) Report {
	entities := ExtractEntities(text)
	mood := DominantMood(entities)

	report := Report{
		Text:       text,
		Highlights: make([]Highlight, 0, len(entities)),
		Mood:       &mood,
		Entities:   make([]EntitySummary, 0, len(entities)),
	}
	for _, e := range entities {
		if style, ok := StyleFor(e.Label); ok {
			report.Highlights = append(report.Highlights, Highlight{
				Start: e.Start,
				End:   e.End,
				Text:  e.Text,
				Label: e.Label,
				Color: style.Color,
				Score: e.Score,
			})
		}
		report.Entities = append(report.Entities, EntitySummary{Text: e.Text, Label: e.Label, Score: e.Score})
	}
	return report
}

// ExtractEntities 按词桶顺序返回每个关键词首次以整词出现的位置。
func ExtractEntities(text string) []Entity {
	runes := []rune(text)
	lower := make([]rune, len(runes))
	for i, r := range runes {
		lower[i] = unicode.ToLower(r)
	}

	var entities []Entity
	for _, bucket := range keywordBuckets {
		for _, keyword := range bucket.Keywords {
			start := indexWord(lower, []rune(keyword))
			if start < 0 {
				continue
			}
			end := start + len([]rune(keyword))
			entities = append(entities, Entity{
				Text:  string(runes[start:end]),
				Label: bucket.Label,
				Start: start,
				End:   end,
				Score: keywordScore,
			})
		}
	}
	return entities
}

// DominantMood 按色系累加命中得分，得出主导情绪。
func DominantMood(entities []Entity) Mood {
	if len(entities) == 0 {
		return Mood{Spectrum: Neutral, Intensity: 0.5, Color: NeutralColor}
	}

	scores := map[Spectrum]float64{}
	var totalIntensity, totalScore float64
	for _, e := range entities {
		totalScore += e.Score
		style, ok := StyleFor(e.Label)
		if !ok {
			continue
		}
		scores[style.Spectrum] += e.Score
		totalIntensity += style.Intensity * e.Score
	}

	dominant := Cool
	for _, s := range []Spectrum{Warm, Neutral} {
		if scores[s] > scores[dominant] {
			dominant = s
		}
	}

	color := NeutralColor
	for _, s := range styles {
		if s.Style.Spectrum == dominant {
			color = s.Style.Color
			break
		}
	}

	count := float64(len(entities))
	return Mood{
		Spectrum:   dominant,
		Intensity:  clampUnit(totalIntensity / count),
		Color:      color,
		Confidence: totalScore / count,
	}
}

func indexWord(haystack, needle []rune) int {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return -1
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if !matchAt(haystack, needle, i) {
			continue
		}
		if i > 0 && isWordRune(haystack[i-1]) {
			continue
		}
		if end := i + len(needle); end < len(haystack) && isWordRune(haystack[end]) {
			continue
		}
		return i
	}
	return -1
}

func matchAt(haystack, needle []rune, at int) bool {
	for j, r := range needle {
		if haystack[at+j] != r {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
