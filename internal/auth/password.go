package auth

// MaxPasswordBytes is the longest input bcrypt accepts. The limit is in bytes,
// so multibyte passwords hit it with fewer characters.
const MaxPasswordBytes = 72

// PasswordFits reports whether password can be hashed with bcrypt.
func PasswordFits(password string) bool {
	return len(password) <= MaxPasswordBytes
}
