package game

import (
	"strconv"
	"strings"
)

// Reward message templates substitute {name}, {item}, {points} and {drops}.
// Unknown placeholders pass through untouched.

func renderRewardMessage(template, username, itemName string) string {
	return strings.NewReplacer(
		"{name}", username,
		"{item}", itemName,
	).Replace(template)
}

func renderTotalRewardMessage(template, username string, points int, totalDrops int64) string {
	return strings.NewReplacer(
		"{name}", username,
		"{points}", strconv.Itoa(points),
		"{drops}", strconv.FormatInt(totalDrops, 10),
	).Replace(template)
}
