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

package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tombee/areas/internal/hookstate"
	"github.com/tombee/areas/internal/store"
)

// GitHub action names.
const (
	GitHubPush              = "github_push"
	GitHubPullRequestOpened = "github_pull_request_opened"
	GitHubIssueOpened       = "github_issue_opened"
)

// GitHub event header values.
const (
	GitHubEventPing        = "ping"
	GitHubEventPush        = "push"
	GitHubEventPullRequest = "pull_request"
	GitHubEventIssues      = "issues"
)

// GitHubActionOpened is the payload action for newly opened PRs and issues.
const GitHubActionOpened = "opened"

// GitHubEvent contains the webhook fields the evaluators read.
type GitHubEvent struct {
	// Name is the X-GitHub-Event header value.
	Name string `json:"-"`

	Action     string           `json:"action"`
	Sender     GitHubUser       `json:"sender"`
	Repository GitHubRepository `json:"repository"`

	// push
	Ref        string         `json:"ref"`
	Before     string         `json:"before"`
	After      string         `json:"after"`
	Compare    string         `json:"compare"`
	Pusher     GitHubPusher   `json:"pusher"`
	Commits    []GitHubCommit `json:"commits"`
	HeadCommit *GitHubCommit  `json:"head_commit"`

	PullRequest *GitHubPullRequest `json:"pull_request"`
	Issue       *GitHubIssue       `json:"issue"`
}

// GitHubUser represents a GitHub user.
type GitHubUser struct {
	Login     string `json:"login"`
	ID        int64  `json:"id"`
	AvatarURL string `json:"avatar_url"`
}

// GitHubRepository represents a GitHub repository.
type GitHubRepository struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Private  bool   `json:"private"`
	HTMLURL  string `json:"html_url"`
}

// GitHubPusher is the push author as git records it.
type GitHubPusher struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// GitHubCommit is one commit in a push.
type GitHubCommit struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	URL     string `json:"url"`
	Author  struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Username string `json:"username"`
	} `json:"author"`
}

// GitHubPullRequest is the subset of a pull_request payload we use.
type GitHubPullRequest struct {
	Number  int        `json:"number"`
	Title   string     `json:"title"`
	Body    string     `json:"body"`
	HTMLURL string     `json:"html_url"`
	State   string     `json:"state"`
	User    GitHubUser `json:"user"`
	Head    struct {
		Ref string `json:"ref"`
	} `json:"head"`
	Base struct {
		Ref string `json:"ref"`
	} `json:"base"`
}

// GitHubIssue is the subset of an issues payload we use.
type GitHubIssue struct {
	Number  int        `json:"number"`
	Title   string     `json:"title"`
	Body    string     `json:"body"`
	HTMLURL string     `json:"html_url"`
	State   string     `json:"state"`
	User    GitHubUser `json:"user"`
}

// ParseGitHubEvent decodes a webhook body. Every handled event must name
// a repository, and pull_request / issues events must carry their object.
func ParseGitHubEvent(name string, body []byte) (*GitHubEvent, error) {
	var ev GitHubEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	ev.Name = name
	switch name {
	case GitHubEventPing:
		return &ev, nil
	case GitHubEventPullRequest:
		if ev.PullRequest == nil {
			return nil, fmt.Errorf("pull_request event without pull_request object")
		}
	case GitHubEventIssues:
		if ev.Issue == nil {
			return nil, fmt.Errorf("issues event without issue object")
		}
	}
	if ev.Repository.FullName == "" {
		return nil, fmt.Errorf("%s event without repository.full_name", name)
	}
	return &ev, nil
}

// GitHubTrigger matches one GitHub action against incoming events.
type GitHubTrigger struct {
	deps   Deps
	name   string
	event  string
	opened bool
}

// NewGitHubPush matches every push.
func NewGitHubPush(deps Deps) *GitHubTrigger {
	return &GitHubTrigger{deps: deps, name: GitHubPush, event: GitHubEventPush}
}

// NewGitHubPullRequestOpened matches newly opened pull requests.
func NewGitHubPullRequestOpened(deps Deps) *GitHubTrigger {
	return &GitHubTrigger{deps: deps, name: GitHubPullRequestOpened, event: GitHubEventPullRequest, opened: true}
}

// NewGitHubIssueOpened matches newly opened issues.
func NewGitHubIssueOpened(deps Deps) *GitHubTrigger {
	return &GitHubTrigger{deps: deps, name: GitHubIssueOpened, event: GitHubEventIssues, opened: true}
}

// Name returns the action component name.
func (g *GitHubTrigger) Name() string { return g.name }

// Event returns the X-GitHub-Event value this trigger handles.
func (g *GitHubTrigger) Event() string { return g.event }

// Bind returns an Evaluator for one delivered event.
func (g *GitHubTrigger) Bind(ev *GitHubEvent) Evaluator {
	return &boundGitHub{trigger: g, ev: ev}
}

type boundGitHub struct {
	trigger *GitHubTrigger
	ev      *GitHubEvent
}

func (b *boundGitHub) Name() string { return b.trigger.name }

func (b *boundGitHub) Evaluate(ctx context.Context, area *store.Area, now time.Time) (*Fire, error) {
	g, ev := b.trigger, b.ev
	if ev.Name != g.event {
		return nil, nil
	}
	if g.opened && ev.Action != GitHubActionOpened {
		return nil, nil
	}

	want, found, err := g.deps.States.Get(ctx, area.ID, hookstate.RepositoryKey)
	if err != nil {
		return nil, fmt.Errorf("read repository filter: %w", err)
	}
	if found && want != "" && want != ev.Repository.FullName {
		return nil, nil
	}

	data := map[string]any{
		"trigger":      g.name,
		"triggered_at": now.UTC().Format(time.RFC3339),
		"repository":   ev.Repository.FullName,
		"repo_name":    ev.Repository.Name,
		"repo_url":     ev.Repository.HTMLURL,
		"sender":       ev.Sender.Login,
	}
	switch g.event {
	case GitHubEventPush:
		data["ref"] = ev.Ref
		data["pusher"] = ev.Pusher.Name
		data["compare_url"] = ev.Compare
		data["commit_count"] = len(ev.Commits)
		if ev.HeadCommit != nil {
			data["commit_id"] = ev.HeadCommit.ID
			data["commit_message"] = ev.HeadCommit.Message
			data["commit_url"] = ev.HeadCommit.URL
		}
	case GitHubEventPullRequest:
		pr := ev.PullRequest
		data["pr_number"] = pr.Number
		data["pr_title"] = pr.Title
		data["pr_body"] = pr.Body
		data["pr_url"] = pr.HTMLURL
		data["pr_author"] = pr.User.Login
		data["head_ref"] = pr.Head.Ref
		data["base_ref"] = pr.Base.Ref
	case GitHubEventIssues:
		is := ev.Issue
		data["issue_number"] = is.Number
		data["issue_title"] = is.Title
		data["issue_body"] = is.Body
		data["issue_url"] = is.HTMLURL
		data["issue_author"] = is.User.Login
	}
	return &Fire{TriggerData: data}, nil
}
