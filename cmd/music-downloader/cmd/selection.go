package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

const confirmYes = "yes"

// parseSelection parses user input like "1,3,5" or "1-3" or "all" into sorted,
// de-duplicated 0-based indices. Out of range numbers are ignored.
func parseSelection(input string, max int) []int {
	input = strings.TrimSpace(strings.ToLower(input))
	if input == "all" {
		indices := make([]int, max)
		for i := range indices {
			indices[i] = i
		}
		return indices
	}

	indexSet := make(map[int]struct{})
	for _, part := range strings.Split(input, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if start, end, isRange := strings.Cut(part, "-"); isRange && start != "" {
			from, err1 := strconv.Atoi(strings.TrimSpace(start))
			to, err2 := strconv.Atoi(strings.TrimSpace(end))
			if err1 == nil && err2 == nil && from >= 1 && to <= max && from <= to {
				for i := from; i <= to; i++ {
					indexSet[i-1] = struct{}{}
				}
			}
			continue
		}

		num, err := strconv.Atoi(part)
		if err == nil && num >= 1 && num <= max {
			indexSet[num-1] = struct{}{}
		}
	}

	indices := make([]int, 0, len(indexSet))
	for idx := range indexSet {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	return indices
}

// promptLine prints prompt and reads one trimmed line from in.
func promptLine(in io.Reader, out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, prompt)
	input, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && input == "" {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

// confirm asks a yes/no question on the terminal. skip answers yes without
// asking; a non-interactive stdin answers no.
func confirm(prompt string, skip bool) bool {
	if skip {
		return true
	}
	if !isTerminal(os.Stdin) {
		log.Warn("Standard input is not a terminal, not asking for confirmation. Use --yes to proceed.")
		return false
	}
	input, err := promptLine(os.Stdin, os.Stdout, prompt+" (y/N): ")
	if err != nil {
		log.WithError(err).Error("Error reading input")
		return false
	}
	return isYes(input)
}

func isYes(input string) bool {
	input = strings.ToLower(strings.TrimSpace(input))
	return input == "y" || input == confirmYes
}

// truncateString truncates a string to maxLen runes, adding "..." if truncated
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
