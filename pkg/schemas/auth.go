package schemas

type Register struct {
	Name        string `json:"name" validate:"required,max=100"`
	Email       string `json:"email" validate:"required,email"`
	PhoneNumber string `json:"phoneNumber" validate:"required,min=6,max=20"`
	Password    string `json:"password" validate:"required,min=6,max=72"`
}

type EmailOnly struct {
	Email string `json:"email" validate:"required,email"`
}

type EmailOTP struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
}

type Login struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type ResetPassword struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type LoginOut struct {
	Token string `json:"token"`
	ID    string `json:"_id"`
	Email string `json:"email"`
}

type RefreshOut struct {
	AccessToken string `json:"accessToken"`
}

type Message struct {
	Message string `json:"message"`
}
