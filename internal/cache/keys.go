package cache

func KeyUserName(userID string) string {
	return Key("users", userID, "name")
}

func KeyOTPSent(userID string) string {
	return Key("otp", userID)
}
