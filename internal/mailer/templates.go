package mailer

import "fmt"

const otpSubject = "Account verification - OTP code"

// OtpEmail renders the verification mail carrying a one-time code.
func OtpEmail(code string, validMinutes int) (subject, body string) {
	body = fmt.Sprintf(`<html><body style="font-family: Arial, sans-serif;">
<div style="max-width:600px;margin:0 auto;padding:20px;">
  <h2>Verify your Keymart account</h2>
  <p>Your OTP code is:</p>
  <div style="background:#f0f0f0;padding:20px;text-align:center;border-radius:5px;">
    <h1 style="letter-spacing:5px;margin:0;">%s</h1>
  </div>
  <p>This code is valid for <strong>%d minutes</strong>.</p>
  <p>If you did not request it, please ignore this email.</p>
</div>
</body></html>`, code, validMinutes)
	return otpSubject, body
}

const tempPasswordSubject = "Your temporary Keymart password"

// TempPasswordEmail renders the mail carrying an admin-issued temporary
// password. The plaintext exists only inside this message.
func TempPasswordEmail(username, password string) (subject, body string) {
	body = fmt.Sprintf(`<html><body style="font-family: Arial, sans-serif;">
<div style="max-width:600px;margin:0 auto;padding:20px;">
  <h2>Password reset</h2>
  <p>An administrator reset the password for account <strong>%s</strong>.</p>
  <p>Your temporary password is:</p>
  <div style="background:#f0f0f0;padding:20px;text-align:center;border-radius:5px;">
    <h1 style="margin:0;">%s</h1>
  </div>
  <p>Please sign in and change it immediately.</p>
</div>
</body></html>`, username, password)
	return tempPasswordSubject, body
}
