package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"coordnet/internal/store"
)

// Twitter JSON input is newline-delimited. v2 API responses are pages with
// a "data" array; v1.1 archives are one tweet object per line. The first
// line decides which shape the whole file gets parsed as.

type v1Entities struct {
	URLs []struct {
		ExpandedURL string `json:"expanded_url"`
	} `json:"urls"`
}

type v1Tweet struct {
	IDStr string `json:"id_str"`
	User  struct {
		IDStr      string `json:"id_str"`
		ScreenName string `json:"screen_name"`
	} `json:"user"`
	RetweetedStatus *struct {
		IDStr string `json:"id_str"`
	} `json:"retweeted_status"`
	InReplyToStatusIDStr *string `json:"in_reply_to_status_id_str"`
	Text                 string  `json:"text"`
	FullText             string  `json:"full_text"`
	ExtendedTweet        *struct {
		FullText string     `json:"full_text"`
		Entities v1Entities `json:"entities"`
	} `json:"extended_tweet"`
	Entities v1Entities `json:"entities"`
}

type v2Tweet struct {
	ID       string `json:"id"`
	AuthorID string `json:"author_id"`
	Author   *struct {
		Username string `json:"username"`
	} `json:"author"`
	Text             string `json:"text"`
	ReferencedTweets []struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"referenced_tweets"`
	Entities struct {
		URLs []struct {
			ExpandedURL string `json:"expanded_url"`
		} `json:"urls"`
	} `json:"entities"`
}

type v2Page struct {
	Data     []v2Tweet `json:"data"`
	Includes struct {
		Users []struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"users"`
	} `json:"includes"`
}

// snowflakeSeconds derives a message timestamp from a Twitter snowflake id:
// the top bits are milliseconds since the Twitter epoch. The absolute origin
// does not matter as long as it is consistent across the corpus.
func snowflakeSeconds(idStr string) float64 {
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return 0
	}
	return float64(id>>22) / 1000
}

func parseTwitterJSON(r io.Reader, push func(store.Message) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)

	v2Mode := false
	first := true
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		if first {
			first = false
			var probe struct {
				Data json.RawMessage `json:"data"`
			}
			if err := json.Unmarshal(line, &probe); err != nil {
				return fmt.Errorf("parsing twitter json: %w", err)
			}
			v2Mode = len(probe.Data) > 0
		}

		var err error
		if v2Mode {
			err = pushV2Page(line, push)
		} else {
			err = pushV1Tweet(line, push)
		}
		if err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading twitter json: %w", err)
	}
	return nil
}

func pushV1Tweet(line []byte, push func(store.Message) error) error {
	var tweet v1Tweet
	if err := json.Unmarshal(line, &tweet); err != nil {
		return fmt.Errorf("parsing v1.1 tweet: %w", err)
	}

	text := tweet.Text
	entities := tweet.Entities
	if tweet.FullText != "" {
		text = tweet.FullText
	} else if tweet.ExtendedTweet != nil {
		text = tweet.ExtendedTweet.FullText
		entities = tweet.ExtendedTweet.Entities
	}

	m := store.Message{
		MessageID: tweet.IDStr,
		UserID:    tweet.User.IDStr,
		Username:  tweet.User.ScreenName,
		Text:      text,
		Timestamp: snowflakeSeconds(tweet.IDStr),
	}
	if tweet.RetweetedStatus != nil {
		repost := tweet.RetweetedStatus.IDStr
		m.RepostID = &repost
	} else {
		if tweet.InReplyToStatusIDStr != nil && *tweet.InReplyToStatusIDStr != "" {
			m.ReplyID = tweet.InReplyToStatusIDStr
		}
		for _, u := range entities.URLs {
			if u.ExpandedURL != "" {
				m.URLs = append(m.URLs, u.ExpandedURL)
			}
		}
	}

	return push(m)
}

func pushV2Page(line []byte, push func(store.Message) error) error {
	var page v2Page
	if err := json.Unmarshal(line, &page); err != nil {
		return fmt.Errorf("parsing v2 page: %w", err)
	}

	usernames := make(map[string]string, len(page.Includes.Users))
	for _, u := range page.Includes.Users {
		usernames[u.ID] = u.Username
	}

	for _, tweet := range page.Data {
		var repostID, replyID *string
		for _, ref := range tweet.ReferencedTweets {
			ref := ref
			switch ref.Type {
			case "retweeted":
				repostID = &ref.ID
			case "replied_to":
				replyID = &ref.ID
			}
		}
		// A retweet that is also threaded counts as a repost only.
		if repostID != nil {
			replyID = nil
		}

		username := usernames[tweet.AuthorID]
		if tweet.Author != nil && tweet.Author.Username != "" {
			username = tweet.Author.Username
		}

		m := store.Message{
			MessageID: tweet.ID,
			UserID:    tweet.AuthorID,
			Username:  username,
			RepostID:  repostID,
			ReplyID:   replyID,
			Text:      tweet.Text,
			Timestamp: snowflakeSeconds(tweet.ID),
		}
		if repostID == nil {
			for _, u := range tweet.Entities.URLs {
				if u.ExpandedURL != "" {
					m.URLs = append(m.URLs, u.ExpandedURL)
				}
			}
		}

		if err := push(m); err != nil {
			return err
		}
	}
	return nil
}
