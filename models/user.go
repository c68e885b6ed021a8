package models

// User, oturum açmış kullanıcı veya profil güncellemesi gelen bir kullanıcı.
// /api/auth/users/me ve /topic/users/updated aynı şekli döner.
type User struct {
	ID        int64
	Username  string
	AvatarURL string
	Bio       string
}

// Reactor, kullanıcıyı reaksiyon kümesine eklenecek şekle çevirir.
func (u User) Reactor() Reactor {
	return Reactor{UserID: u.ID, DisplayName: u.Username}
}
