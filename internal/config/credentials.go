package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Credentials is the access descriptor for the object store.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
}

// Empty reports whether no key material is present. Callers fall back to the
// SDK default chain (env, shared config, instance role) in that case.
func (c Credentials) Empty() bool {
	return c.AccessKeyID == "" && c.SecretAccessKey == ""
}

// String redacts the secret.
func (c Credentials) String() string {
	if c.Empty() {
		return "credentials(default chain)"
	}
	id := c.AccessKeyID
	if len(id) > 4 {
		id = id[:4] + strings.Repeat("*", len(id)-4)
	}
	return fmt.Sprintf("credentials(key=%s)", id)
}

const credentialsSection = "AWS"

// LoadCredentials reads a key-value credentials file such as:
//
//	[AWS]
//	AWS_ACCESS_KEY_ID=AKIA...
//	AWS_SECRET_ACCESS_KEY=...
//
// Only keys before the first section header and keys in the [AWS] section
// (any case) are read; other sections are skipped. Keys are matched
// case-insensitively. KEY and SECRET are accepted as short names. A missing,
// malformed or incomplete file is an error.
func LoadCredentials(path string) (Credentials, error) {
	f, err := os.Open(path)
	if err != nil {
		return Credentials{}, fmt.Errorf("read credentials %s: %w", path, err)
	}
	defer f.Close()

	var b strings.Builder
	inAWS := true // the unnamed leading section
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			inAWS = strings.EqualFold(strings.TrimSpace(line[1:len(line)-1]), credentialsSection)
			continue
		}
		if !inAWS || strings.HasPrefix(line, ";") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return Credentials{}, fmt.Errorf("read credentials %s: %w", path, err)
	}

	kv, err := godotenv.Unmarshal(b.String())
	if err != nil {
		return Credentials{}, fmt.Errorf("parse credentials %s: %w", path, err)
	}
	norm := make(map[string]string, len(kv))
	for k, v := range kv {
		norm[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}

	c := Credentials{
		AccessKeyID:     firstNonEmpty(norm["AWS_ACCESS_KEY_ID"], norm["KEY"]),
		SecretAccessKey: firstNonEmpty(norm["AWS_SECRET_ACCESS_KEY"], norm["SECRET"]),
	}
	if c.AccessKeyID == "" || c.SecretAccessKey == "" {
		return Credentials{}, fmt.Errorf("credentials %s: AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY are both required", path)
	}
	return c, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
