package utils

import "strings"

func ToStringSlice(slice []any) []string {
	stringSlice := make([]string, 0)
	for _, v := range slice {
		if s, ok := v.(string); ok {
			stringSlice = append(stringSlice, s)
		}
	}
	return stringSlice
}

// SplitScopes splits a space separated OAuth scope string, dropping empty entries.
func SplitScopes(scope string) []string {
	return strings.Fields(scope)
}
