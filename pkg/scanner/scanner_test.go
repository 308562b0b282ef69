package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScannerPunctuation(t *testing.T) {
	input := "(){},.-+;/*"
	expected := []TokenType{
		TokenLeftParen, TokenRightParen, TokenLeftBrace, TokenRightBrace,
		TokenComma, TokenDot, TokenMinus, TokenPlus, TokenSemicolon,
		TokenSlash, TokenStar, TokenEOF,
	}

	s := New(input)
	for _, want := range expected {
		tok := s.Next()
		assert.Equal(t, want, tok.Type, "token %v", tok)
	}
}

func TestScannerOperators(t *testing.T) {
	tests := []struct {
		input    string
		expected TokenType
	}{
		{"!", TokenBang},
		{"!=", TokenBangEqual},
		{"=", TokenEqual},
		{"==", TokenEqualEqual},
		{"<", TokenLess},
		{"<=", TokenLessEqual},
		{">", TokenGreater},
		{">=", TokenGreaterEqual},
	}

	for _, tt := range tests {
		s := New(tt.input)
		tok := s.Next()
		assert.Equal(t, tt.expected, tok.Type, "input %q", tt.input)
		assert.Equal(t, tt.input, tok.Lexeme)
	}
}

func TestScannerKeywords(t *testing.T) {
	tests := []struct {
		input    string
		expected TokenType
	}{
		{"and", TokenAnd},
		{"class", TokenClass},
		{"else", TokenElse},
		{"false", TokenFalse},
		{"for", TokenFor},
		{"fun", TokenFun},
		{"if", TokenIf},
		{"nil", TokenNil},
		{"or", TokenOr},
		{"print", TokenPrint},
		{"return", TokenReturn},
		{"super", TokenSuper},
		{"this", TokenThis},
		{"true", TokenTrue},
		{"var", TokenVar},
		{"while", TokenWhile},
		// Near-keywords stay identifiers
		{"classy", TokenIdentifier},
		{"superb", TokenIdentifier},
		{"_var", TokenIdentifier},
	}

	for _, tt := range tests {
		s := New(tt.input)
		assert.Equal(t, tt.expected, s.Next().Type, "input %q", tt.input)
	}
}

func TestScannerNumbers(t *testing.T) {
	tests := []struct {
		input  string
		lexeme string
	}{
		{"0", "0"},
		{"42", "42"},
		{"12.5", "12.5"},
		{"0.001", "0.001"},
	}

	for _, tt := range tests {
		s := New(tt.input)
		tok := s.Next()
		assert.Equal(t, TokenNumber, tok.Type)
		assert.Equal(t, tt.lexeme, tok.Lexeme)
	}
}

func TestScannerNumberDoesNotEatTrailingDot(t *testing.T) {
	s := New("123.foo")
	first := s.Next()
	assert.Equal(t, TokenNumber, first.Type)
	assert.Equal(t, "123", first.Lexeme)
	assert.Equal(t, TokenDot, s.Next().Type)
	assert.Equal(t, TokenIdentifier, s.Next().Type)
}

func TestScannerString(t *testing.T) {
	s := New(`"hello world"`)
	tok := s.Next()
	require.Equal(t, TokenString, tok.Type)
	assert.Equal(t, `"hello world"`, tok.Lexeme)
	assert.Equal(t, TokenEOF, s.Next().Type)
}

func TestScannerMultilineStringTracksLine(t *testing.T) {
	s := New("\"a\nb\"\nx")
	tok := s.Next()
	require.Equal(t, TokenString, tok.Type)

	ident := s.Next()
	assert.Equal(t, TokenIdentifier, ident.Type)
	assert.Equal(t, 3, ident.Span.Line)
}

func TestScannerUnterminatedString(t *testing.T) {
	s := New(`"oops`)
	tok := s.Next()
	assert.Equal(t, TokenError, tok.Type)
	assert.Equal(t, "Unterminated string.", tok.Lexeme)
}

func TestScannerUnexpectedCharacter(t *testing.T) {
	s := New("@")
	tok := s.Next()
	assert.Equal(t, TokenError, tok.Type)
	assert.Equal(t, "Unexpected character.", tok.Lexeme)
}

func TestScannerSkipsCommentsAndWhitespace(t *testing.T) {
	input := "// a comment\nvar x // trailing\n+"
	s := New(input)

	assert.Equal(t, TokenVar, s.Next().Type)
	assert.Equal(t, TokenIdentifier, s.Next().Type)
	assert.Equal(t, TokenPlus, s.Next().Type)
	assert.Equal(t, TokenEOF, s.Next().Type)
}

func TestScannerSlashAloneIsDivision(t *testing.T) {
	s := New("1 / 2")
	assert.Equal(t, TokenNumber, s.Next().Type)
	assert.Equal(t, TokenSlash, s.Next().Type)
	assert.Equal(t, TokenNumber, s.Next().Type)
}

func TestScannerSpans(t *testing.T) {
	s := New("var foo = 1;")
	varTok := s.Next()
	assert.Equal(t, 0, varTok.Span.Offset)
	assert.Equal(t, 3, varTok.Span.Length)
	assert.Equal(t, 1, varTok.Span.Line)

	fooTok := s.Next()
	assert.Equal(t, 4, fooTok.Span.Offset)
	assert.Equal(t, 3, fooTok.Span.Length)
}

func TestScannerLineNumbers(t *testing.T) {
	s := New("one\ntwo\nthree")
	assert.Equal(t, 1, s.Next().Span.Line)
	assert.Equal(t, 2, s.Next().Span.Line)
	assert.Equal(t, 3, s.Next().Span.Line)
}

func TestTokenize(t *testing.T) {
	tokens := New("print 1;").Tokenize()
	require.Len(t, tokens, 4)
	assert.Equal(t, TokenPrint, tokens[0].Type)
	assert.Equal(t, TokenNumber, tokens[1].Type)
	assert.Equal(t, TokenSemicolon, tokens[2].Type)
	assert.Equal(t, TokenEOF, tokens[3].Type)
}
