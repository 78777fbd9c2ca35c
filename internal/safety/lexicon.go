package safety

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

const BuiltinLexiconVersion = "builtin-1"

// Lexicon is the versioned word and pattern set the classifier evaluates.
// Profanity entries are literal words or phrases; Bullying and Inappropriate
// entries are regular expressions matched case-insensitively.
type Lexicon struct {
	Version       string   `yaml:"version"`
	Profanity     []string `yaml:"profanity"`
	Bullying      []string `yaml:"bullying"`
	Inappropriate []string `yaml:"inappropriate"`
}

func DefaultLexicon() Lexicon {
	return Lexicon{
		Version: BuiltinLexiconVersion,
		Profanity: []string{
			"ass", "asshole", "bastard", "bitch", "bullshit", "crap", "damn",
			"dick", "fuck", "fucking", "motherfucker", "piss", "shit", "slut",
			"whore", "wtf", "stfu",
		},
		Bullying: []string{
			`you\s+are\s+stupid`,
			`you\s+are\s+dumb`,
			`hate\s+you`,
			`kill\s+yourself`,
			`nobody\s+likes\s+you`,
			`أنت\s+غبي`,
			`أكرهك`,
		},
		Inappropriate: []string{
			`bad\s+word`,
			`curse`,
			`swear`,
			`f[*@#$]+ck`,
			`sh[*@#$!1]+t`,
			`b[*@#$!1]+tch`,
		},
	}
}

func ParseLexicon(data []byte) (Lexicon, error) {
	var l Lexicon
	if err := yaml.Unmarshal(data, &l); err != nil {
		return Lexicon{}, fmt.Errorf("parse lexicon: %w", err)
	}
	if strings.TrimSpace(l.Version) == "" {
		return Lexicon{}, fmt.Errorf("parse lexicon: version is required")
	}
	return l, nil
}

func LoadLexicon(path string) (Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Lexicon{}, fmt.Errorf("read lexicon: %w", err)
	}
	return ParseLexicon(data)
}

// CompiledLexicon is immutable once built and safe for concurrent use.
type CompiledLexicon struct {
	version       string
	profanity     *regexp.Regexp
	bullying      []*regexp.Regexp
	inappropriate []*regexp.Regexp
}

func (c *CompiledLexicon) Version() string {
	return c.version
}

func Compile(l Lexicon) (*CompiledLexicon, error) {
	compiled := &CompiledLexicon{version: l.Version}

	words := make([]string, 0, len(l.Profanity))
	seen := make(map[string]bool, len(l.Profanity))
	for _, w := range l.Profanity {
		folded := strings.Join(strings.Fields(normalize(w)), " ")
		if folded == "" || seen[folded] {
			continue
		}
		seen[folded] = true
		words = append(words, strings.ReplaceAll(regexp.QuoteMeta(folded), " ", `\s+`))
	}
	if len(words) > 0 {
		// Longest first so multi-word phrases win over their prefixes.
		sort.Slice(words, func(i, j int) bool {
			if len(words[i]) != len(words[j]) {
				return len(words[i]) > len(words[j])
			}
			return words[i] < words[j]
		})
		re, err := regexp.Compile(`(?:^|[^\p{L}\p{N}])(?:` + strings.Join(words, "|") + `)(?:$|[^\p{L}\p{N}])`)
		if err != nil {
			return nil, fmt.Errorf("compile profanity list: %w", err)
		}
		compiled.profanity = re
	}

	var err error
	if compiled.bullying, err = compilePatterns("bullying", l.Bullying); err != nil {
		return nil, err
	}
	if compiled.inappropriate, err = compilePatterns("inappropriate", l.Inappropriate); err != nil {
		return nil, err
	}
	return compiled, nil
}

func MustCompile(l Lexicon) *CompiledLexicon {
	c, err := Compile(l)
	if err != nil {
		panic(err)
	}
	return c
}

func compilePatterns(kind string, patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		re, err := regexp.Compile(`(?i)` + p)
		if err != nil {
			return nil, fmt.Errorf("compile %s pattern %q: %w", kind, p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// normalize applies NFKC and Unicode case folding. cases.Caser keeps state, so
// a fresh one is built per call.
func normalize(s string) string {
	return cases.Fold().String(norm.NFKC.String(s))
}
