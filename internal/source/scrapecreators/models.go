package scrapecreators

import (
	"encoding/json"
	"strings"
)

// InstagramProfileResponse is the /v1/instagram/profile payload.
type InstagramProfileResponse struct {
	Data *struct {
		User *InstagramUser `json:"user"`
	} `json:"data"`
}

type InstagramUser struct {
	Username       string      `json:"username"`
	FullName       string      `json:"full_name"`
	Biography      string      `json:"biography"`
	ProfilePicURL  string      `json:"profile_pic_url"`
	ProfilePicHD   string      `json:"profile_pic_url_hd"`
	IsVerified     bool        `json:"is_verified"`
	ExternalURL    string      `json:"external_url"`
	BioLinks       []BioLink   `json:"bio_links"`
	EdgeFollowedBy EdgeCounter `json:"edge_followed_by"`
	EdgeFollow     EdgeCounter `json:"edge_follow"`
}

type BioLink struct {
	URL string `json:"url"`
}

type EdgeCounter struct {
	Count int64 `json:"count"`
}

// InstagramPostsResponse is the /v2/instagram/user/posts payload.
type InstagramPostsResponse struct {
	Items []InstagramPost `json:"items"`
}

type InstagramPost struct {
	Code               string           `json:"code"`
	Caption            Caption          `json:"caption"`
	LikeCount          *int64           `json:"like_count"`
	LikesHidden        *bool            `json:"like_and_view_counts_disabled"`
	CommentCount       *int64           `json:"comment_count"`
	PlayCount          *int64           `json:"play_count"`
	MediaType          int              `json:"media_type"`
	TakenAt            int64            `json:"taken_at"`
	IsPaidPartnership  bool             `json:"is_paid_partnership"`
	CarouselMediaCount int              `json:"carousel_media_count"`
	CarouselMedia      []InstagramMedia `json:"carousel_media"`
	ImageVersions      ImageVersions    `json:"image_versions2"`
	DisplayURI         string           `json:"display_uri"`
	Usertags           *Usertags        `json:"usertags"`
	Location           *Location        `json:"location"`
}

type InstagramMedia struct {
	MediaType     int            `json:"media_type"`
	VideoVersions []URLCandidate `json:"video_versions"`
	ImageVersions ImageVersions  `json:"image_versions2"`
	DisplayURI    string         `json:"display_uri"`
}

type ImageVersions struct {
	Candidates           []URLCandidate `json:"candidates"`
	AdditionalCandidates *struct {
		IgtvFirstFrame *URLCandidate `json:"igtv_first_frame"`
	} `json:"additional_candidates"`
}

type URLCandidate struct {
	URL string `json:"url"`
}

type Usertags struct {
	In []struct {
		User struct {
			Username string `json:"username"`
		} `json:"user"`
	} `json:"in"`
}

type Location struct {
	Name string `json:"name"`
	City string `json:"city"`
}

// Caption accepts both the object form ({"text": ...}) and a bare string.
type Caption struct {
	Text string
}

func (c *Caption) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		c.Text = ""
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		return json.Unmarshal(data, &c.Text)
	}
	var obj struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	c.Text = obj.Text
	return nil
}

// TikTokVideosResponse is the /v3/tiktok/profile/videos payload.
type TikTokVideosResponse struct {
	AwemeList []TikTokVideo `json:"aweme_list"`
}

type TikTokVideo struct {
	AwemeID    string          `json:"aweme_id"`
	Desc       string          `json:"desc"`
	CreateTime int64           `json:"create_time"`
	Region     string          `json:"region"`
	ShareURL   string          `json:"share_url"`
	Author     TikTokAuthor    `json:"author"`
	Statistics TikTokStats     `json:"statistics"`
	Video      TikTokVideoInfo `json:"video"`
	Commerce   *struct {
		LabelText string `json:"bc_label_test_text"`
	} `json:"commerce_info"`
}

type TikTokAuthor struct {
	UniqueID       string  `json:"unique_id"`
	Nickname       string  `json:"nickname"`
	Signature      string  `json:"signature"`
	FollowerCount  int64   `json:"follower_count"`
	FollowingCount int64   `json:"following_count"`
	CustomVerify   string  `json:"custom_verify"`
	AvatarThumb    URLList `json:"avatar_thumb"`
	AvatarMedium   URLList `json:"avatar_medium"`
}

type TikTokStats struct {
	DiggCount    *int64 `json:"digg_count"`
	CommentCount *int64 `json:"comment_count"`
	PlayCount    *int64 `json:"play_count"`
	ShareCount   *int64 `json:"share_count"`
}

type TikTokVideoInfo struct {
	AIDynamicCover URLList `json:"ai_dynamic_cover"`
	Cover          URLList `json:"cover"`
}

type URLList struct {
	URLList []string `json:"url_list"`
}

func (u URLList) First() string {
	for _, s := range u.URLList {
		if s != "" {
			return s
		}
	}
	return ""
}
