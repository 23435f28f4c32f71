package layout

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"dfmem/process"

	"github.com/pelletier/go-toml/v2"
)

// LoadFile reads and validates one layout file.
func LoadFile(path string) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(path, data)
}

// Parse decodes a layout document. Syntax errors fail with ErrParse; schema
// violations still return a layout, marked incomplete with its Problems set.
func Parse(path string, data []byte) (*Layout, error) {
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrParse, filepath.Base(path), err)
	}
	if doc == nil {
		doc = map[string]any{}
	}

	l := &Layout{
		path:    path,
		offsets: make(map[Section]map[string]int64),
		flags:   make(map[FlagType]map[uint32]string),
	}

	l.info = readInfo(doc)
	doc["info"] = map[string]any{
		"checksum":     l.info.Checksum,
		"version_name": l.info.VersionName,
		"git_sha":      l.info.GitSHA,
		"complete":     l.info.Complete,
		"string_abi":   string(l.info.StringABI),
	}

	for _, section := range Sections {
		raw, ok := doc[string(section)]
		if !ok {
			continue
		}
		table, ok := raw.(map[string]any)
		if !ok {
			l.problems = append(l.problems, fmt.Sprintf("%s: not a table", section))
			continue
		}

		offsets := make(map[string]int64, len(table))
		normalized := make(map[string]any, len(table))
		for key, value := range table {
			n, ok := parseNumber(value)
			if !ok {
				l.problems = append(l.problems, fmt.Sprintf("%s.%s: %v is not an offset", section, key, value))
				continue
			}
			offsets[key] = n
			normalized[key] = n
		}
		l.offsets[section] = offsets
		doc[string(section)] = normalized
	}

	for _, flagType := range FlagTypes {
		raw, ok := doc[string(flagType)].(map[string]any)
		if !ok {
			continue
		}
		flags := make(map[uint32]string, len(raw))
		for key, value := range raw {
			mask, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(key), "0x"), 16, 32)
			desc, isString := value.(string)
			if err != nil || !isString {
				l.problems = append(l.problems, fmt.Sprintf("%s.%s: bad flag entry", flagType, key))
				continue
			}
			flags[uint32(mask)] = desc
		}
		l.flags[flagType] = flags
	}

	problems, err := validate(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrParse, filepath.Base(path), err)
	}
	l.problems = append(l.problems, problems...)

	if l.info.StringABI == SSO {
		for _, key := range []string{"string_buffer_offset", "string_length_offset", "string_cap_offset"} {
			if _, ok := l.Lookup(Language, key); !ok {
				l.problems = append(l.problems, fmt.Sprintf("%s.%s: required by the sso string ABI", Language, key))
			}
		}
	}

	l.complete = l.info.Complete && len(l.problems) == 0
	return l, nil
}

func readInfo(doc map[string]any) Info {
	info := Info{Complete: true, StringABI: SSO}
	table, _ := doc["info"].(map[string]any)

	if s, ok := table["checksum"].(string); ok {
		info.Checksum = process.NormalizeChecksum(s)
	} else if n, ok := parseNumber(table["checksum"]); ok {
		// an unquoted hex checksum arrives as an integer
		info.Checksum = fmt.Sprintf("0x%x", uint64(n))
	}
	info.VersionName, _ = table["version_name"].(string)
	info.GitSHA, _ = table["git_sha"].(string)
	if complete, ok := table["complete"].(bool); ok {
		info.Complete = complete
	}
	if abi, ok := table["string_abi"].(string); ok && abi != "" {
		info.StringABI = StringABI(strings.ToLower(abi))
	}
	return info
}
