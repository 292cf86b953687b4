package tools

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/emersion/go-message/mail"

	"github.com/brandon/mailsync/pkg/types"
)

// JSON numbers arrive as float64; strings are accepted for clients that quote them

func requiredString(params map[string]interface{}, name string) (string, error) {
	value, ok := params[name].(string)
	if !ok || value == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	return value, nil
}

func optionalString(params map[string]interface{}, name string) string {
	value, _ := params[name].(string)
	return value
}

func optionalBool(params map[string]interface{}, name string) bool {
	switch v := params[name].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

func optionalInt(params map[string]interface{}, name string) (int, error) {
	switch v := params[name].(type) {
	case nil:
		return 0, nil
	case float64:
		return int(v), nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", name, err)
		}
		return n, nil
	}
	return 0, fmt.Errorf("invalid %s", name)
}

func uidList(params map[string]interface{}, name string) ([]uint32, error) {
	raw, ok := params[name].([]interface{})
	if !ok {
		return nil, fmt.Errorf("%s is required", name)
	}

	uids := make([]uint32, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case float64:
			if v < 1 || v != float64(uint32(v)) {
				return nil, fmt.Errorf("invalid uid in %s: %v", name, v)
			}
			uids = append(uids, uint32(v))
		case string:
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil || n == 0 {
				return nil, fmt.Errorf("invalid uid in %s: %q", name, v)
			}
			uids = append(uids, uint32(n))
		default:
			return nil, fmt.Errorf("invalid uid in %s: %v", name, item)
		}
	}
	return uids, nil
}

// contactList parses an RFC 5322 address list such as "Bob <bob@example.com>, carol@example.com"
func contactList(params map[string]interface{}, name string) ([]types.Contact, error) {
	value := optionalString(params, name)
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}

	addrs, err := mail.ParseAddressList(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	contacts := make([]types.Contact, len(addrs))
	for i, addr := range addrs {
		contacts[i] = types.Contact{Name: addr.Name, Address: addr.Address}
	}
	return contacts, nil
}

func uidsSchema(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"items":       map[string]interface{}{"type": "integer"},
		"description": description,
	}
}

func stringSchema(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}
