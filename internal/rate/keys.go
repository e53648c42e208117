package rate

const defaultPrefix = "tg:rl"

func (l *Limiter) loginUserKey(email string) string {
	return l.prefix + ":l:u:" + email
}

func (l *Limiter) loginIPKey(ip string) string {
	return l.prefix + ":l:ip:" + ip
}

func (l *Limiter) refreshKey(deviceID, ip string) string {
	if ip == "" {
		ip = "-"
	}
	return l.prefix + ":r:d:" + ip + "|" + deviceID
}
