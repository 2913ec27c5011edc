package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var errNoJSONObject = errors.New("no JSON object found")

// ExtractJSON 从模型输出中取出第一个完整的 JSON 对象。
// 处理 ```json 代码块以及对象前后的解释性文字。
func ExtractJSON(s string) (string, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", errNoJSONObject
	}
	end := matchBrace(s, start)
	if end < 0 {
		return "", errNoJSONObject
	}
	return s[start : end+1], nil
}

// matchBrace 返回与 s[open] 配对的 '}' 下标，跳过字符串字面量中的括号。
func matchBrace(s string, open int) int {
	depth := 0
	inString := false
	escaped := false
	for i := open; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// DecodeJSON 提取并解码 JSON 对象
func DecodeJSON(s string, v any) error {
	obj, err := ExtractJSON(s)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(obj), v); err != nil {
		return fmt.Errorf("decode oracle json: %w", err)
	}
	return nil
}

// JSONObjects 返回 s 中所有顶层的平衡 JSON 对象候选（未校验语法）。
func JSONObjects(s string) []string {
	var out []string
	for i := 0; i < len(s); i++ {
		if s[i] != '{' {
			continue
		}
		end := matchBrace(s, i)
		if end < 0 {
			// 未闭合的 { 不影响后面的对象
			continue
		}
		out = append(out, s[i:end+1])
		i = end
	}
	return out
}
