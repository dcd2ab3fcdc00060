package model

// PlayerRecord is the per-participant view carried on a Session, resolved
// from the external user-store collaborator at match time (spec.md §1,
// §3: "{white, black} player records (user id, display name, rating,
// avatar, title)").
type PlayerRecord struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Rating      int    `json:"rating"`
	Avatar      string `json:"avatar,omitempty"`
	Title       string `json:"title,omitempty"`
}

// PlayersByColor pairs the two participants.
type PlayersByColor struct {
	White PlayerRecord `json:"white"`
	Black PlayerRecord `json:"black"`
}

func (p *PlayersByColor) Get(c Color) PlayerRecord {
	if c == White {
		return p.White
	}
	return p.Black
}

// ColorOf returns the color of userID within the pair, or "" if absent.
func (p *PlayersByColor) ColorOf(userID string) Color {
	if p.White.UserID == userID {
		return White
	}
	if p.Black.UserID == userID {
		return Black
	}
	return ""
}
