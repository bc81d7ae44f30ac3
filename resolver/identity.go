package resolver

// Provider 代表外部身份提供者的識別名稱
type Provider string

const (
	ProviderAuth0  Provider = "auth0"
	ProviderGitHub Provider = "github"
)

// EmailCandidate 代表提供者回傳的其中一個 email 候選項
// 部分提供者（如 GitHub）會回傳多個 email，並以 Primary 標記主要信箱
type EmailCandidate struct {
	Address string
	Primary bool
}

// ExternalIdentity 代表一次登入嘗試中，由外部提供者交換回來的身份資料
// 每次驗證流程都會建立新的實例，不會被修改
type ExternalIdentity struct {
	Provider    Provider
	SubjectID   string // 提供者核發的識別字串（sub），在該提供者內唯一
	Emails      []EmailCandidate
	DisplayName string
}

// PrimaryEmail 依照固定的規則從候選清單中挑出一個 email：
// 優先回傳標記為 Primary 的項目，否則回傳第一個項目。
// 清單為空或挑出的 email 為空字串時回傳 false。
func (id ExternalIdentity) PrimaryEmail() (string, bool) {
	if len(id.Emails) == 0 {
		return "", false
	}
	picked := id.Emails[0].Address
	for _, candidate := range id.Emails {
		if candidate.Primary {
			picked = candidate.Address
			break
		}
	}
	if picked == "" {
		return "", false
	}
	return picked, true
}
