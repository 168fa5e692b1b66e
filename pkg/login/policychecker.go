package login

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"
)

// PasswordPolicy is the complexity rule set for local passwords.
// Letter classes are Unicode aware, so Cyrillic letters count as upper or lower case.
type PasswordPolicy struct {
	MinLength           int
	RequireUppercase    bool
	RequireLowercase    bool
	RequireDigit        bool
	RequireSpecialChar  bool
	DisallowCommonPwds  bool
	MaxRepeatedChars    int
	CommonPasswordsPath string
}

func DefaultPasswordPolicy() *PasswordPolicy {
	return &PasswordPolicy{
		MinLength:          8,
		RequireUppercase:   true,
		RequireLowercase:   true,
		RequireDigit:       true,
		DisallowCommonPwds: true,
		MaxRepeatedChars:   3,
	}
}

// DefaultPasswordPolicyChecker satisfies user.PasswordPolicy
type DefaultPasswordPolicyChecker struct {
	policy          *PasswordPolicy
	commonPasswords map[string]bool
}

// NewDefaultPasswordPolicyChecker builds a checker. A nil commonPasswords loads
// policy.CommonPasswordsPath on top of a short built-in list.
func NewDefaultPasswordPolicyChecker(policy *PasswordPolicy, commonPasswords map[string]bool) *DefaultPasswordPolicyChecker {
	if policy == nil {
		policy = DefaultPasswordPolicy()
	}
	if commonPasswords == nil {
		commonPasswords = loadCommonPasswords(policy.CommonPasswordsPath)
	}
	return &DefaultPasswordPolicyChecker{policy: policy, commonPasswords: commonPasswords}
}

type charClasses struct {
	upper, lower, digit, special bool
	longestRun                   int
}

func classify(password string) charClasses {
	var c charClasses
	var prev rune
	run := 0
	for i, r := range password {
		switch {
		case unicode.IsUpper(r):
			c.upper = true
		case unicode.IsLower(r):
			c.lower = true
		case unicode.IsDigit(r):
			c.digit = true
		case !unicode.IsLetter(r):
			c.special = true
		}
		if i > 0 && r == prev {
			run++
		} else {
			run = 1
		}
		c.longestRun = max(c.longestRun, run)
		prev = r
	}
	return c
}

func (pc *DefaultPasswordPolicyChecker) CheckPasswordComplexity(password string) error {
	p := pc.policy
	if utf8.RuneCountInString(password) < p.MinLength {
		return fmt.Errorf("password must be at least %d characters long", p.MinLength)
	}

	c := classify(password)
	var missing string
	switch {
	case p.RequireUppercase && !c.upper:
		missing = "uppercase letter"
	case p.RequireLowercase && !c.lower:
		missing = "lowercase letter"
	case p.RequireDigit && !c.digit:
		missing = "digit"
	case p.RequireSpecialChar && !c.special:
		missing = "special character"
	}
	if missing != "" {
		return fmt.Errorf("password must contain at least one %s", missing)
	}

	if p.DisallowCommonPwds && pc.commonPasswords[strings.ToLower(password)] {
		return fmt.Errorf("password is too common")
	}
	if p.MaxRepeatedChars > 0 && c.longestRun > p.MaxRepeatedChars {
		return fmt.Errorf("password cannot repeat a character more than %d times in a row", p.MaxRepeatedChars)
	}
	return nil
}

func (pc *DefaultPasswordPolicyChecker) GetPolicy() *PasswordPolicy {
	return pc.policy
}

var builtinCommonPasswords = []string{
	"password", "123456", "12345678", "qwerty", "qwerty123", "password1",
	"admin", "letmein", "welcome", "abc123", "йцукен", "пароль",
}

func loadCommonPasswords(path string) map[string]bool {
	result := make(map[string]bool, len(builtinCommonPasswords))
	for _, pwd := range builtinCommonPasswords {
		result[pwd] = true
	}
	if path == "" {
		return result
	}

	f, err := os.Open(path)
	if err != nil {
		slog.Warn("Common passwords file unavailable, using built-in list", "path", path, "error", err)
		return result
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			result[strings.ToLower(line)] = true
		}
	}
	return result
}
