// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package hookstate

import (
	"strings"
	"time"
)

// RepositoryKey holds the optional GitHub repository filter of an Area.
const RepositoryKey = "repository"

// FiredMarker is the value stored under claimed occurrence keys.
const FiredMarker = "triggered"

const (
	dailyTimerPrefix   = "daily_timer_"
	weeklyTimerPrefix  = "weekly_timer_"
	monthlyTimerPrefix = "monthly_timer_"
)

// OccurrencePrefixes lists the key prefixes of dated, one-per-day markers.
// Only these are eligible for retention cleanup.
var OccurrencePrefixes = []string{dailyTimerPrefix, weeklyTimerPrefix, monthlyTimerPrefix}

func dated(prefix, areaID string, day time.Time) string {
	return prefix + areaID + "_" + day.Format("2006-01-02")
}

// DailyTimerKey is the occurrence key of a daily timer for one calendar day.
func DailyTimerKey(areaID string, day time.Time) string {
	return dated(dailyTimerPrefix, areaID, day)
}

// WeeklyTimerKey is the occurrence key of a weekly timer for one calendar day.
func WeeklyTimerKey(areaID string, day time.Time) string {
	return dated(weeklyTimerPrefix, areaID, day)
}

// MonthlyTimerKey is the occurrence key of a monthly timer for one calendar day.
func MonthlyTimerKey(areaID string, day time.Time) string {
	return dated(monthlyTimerPrefix, areaID, day)
}

// IntervalTimerKey stores the last fire time of an interval timer (RFC 3339).
func IntervalTimerKey(areaID string) string {
	return "interval_timer_" + areaID
}

// GmailCursorKey stores the id of the newest message seen.
func GmailCursorKey(areaID string) string {
	return "gmail_last_email_" + areaID
}

// RedditHotPostKey stores the id of the top hot post seen in a subreddit.
func RedditHotPostKey(areaID, subreddit string) string {
	return "reddit_hot_post_" + areaID + "_" + strings.ToLower(subreddit)
}

// TrelloNewCardKey stores the id of the newest createCard action seen on a board.
func TrelloNewCardKey(areaID, boardID string) string {
	return "trello_new_card_" + areaID + "_" + boardID
}

// TrelloCardMovedKey stores the id of the newest list-change action seen on a board.
func TrelloCardMovedKey(areaID, boardID string) string {
	return "trello_card_moved_" + areaID + "_" + boardID
}

// TwitchLiveKey stores the current stream id of a channel, or "offline".
func TwitchLiveKey(areaID, login string) string {
	return "twitch_stream_live_" + areaID + "_" + strings.ToLower(login)
}
