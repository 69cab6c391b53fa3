// Package i18n holds the localized strings shown by built-in commands.
package i18n

import (
	"strings"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys.
const (
	Uptime   = "uptime"
	User     = "user"
	RAM      = "ram"
	Host     = "host"
	Commands = "commands"
	HelpText = "help_text"

	ModuleLoaded     = "module_loaded"
	ModuleUnloaded   = "module_unloaded"
	ModuleNotFound   = "module_not_found"
	ModuleLoadFailed = "module_load_failed"
	ModuleLoading    = "module_loading"
	ModulesList      = "modules_list"
	NoModules        = "no_modules"
	ReplyToFile      = "reply_to_file"
	NotAFile         = "not_a_file"
	NeedLuaFile      = "need_lua_file"

	ReasonInvalidName = "reason_invalid_name"
	ReasonCompile     = "reason_compile"
	ReasonNotAPlugin  = "reason_not_a_plugin"
	ReasonCollision   = "reason_collision"
	ReasonDownload    = "reason_download"

	LangChanged   = "lang_changed"
	Restarting    = "restarting"
	Stopping      = "stopping"
	BackupCreated = "backup_created"
	BackupFailed  = "backup_failed"
	TempCleaned   = "temp_cleaned"
	CommandFailed = "command_failed"
)

// DefaultLanguage is used for unknown codes.
const DefaultLanguage = "ru"

var (
	supported = []language.Tag{language.Russian, language.English}

	once     sync.Once
	cat      *catalog.Builder
	printers map[string]*message.Printer
)

var entries = map[language.Tag]map[string]string{
	language.Russian: {
		Uptime:   "Аптайм",
		User:     "Юзер",
		RAM:      "Оперативка",
		Host:     "Хост",
		Commands: "Команды",
		HelpText: "**NewEraV4Fix - команды:**\n\n" +
			"`%[1]shelp` - Показать команды\n" +
			"`%[1]sinfo` - Информация о системе\n" +
			"`%[1]slm` - Загрузить модуль (реплай на файл)\n" +
			"`%[1]sulm <имя>` - Выгрузить модуль\n" +
			"`%[1]smodules` - Список модулей\n" +
			"`%[1]ssetlang <%[2]s>` - Сменить язык\n" +
			"`%[1]srestart` - Перезагрузка\n" +
			"`%[1]sstop` - Остановка\n" +
			"`%[1]sbackup` - Создать бэкап\n" +
			"`%[1]sclean` - Очистить временные файлы",

		ModuleLoaded:     "Модуль %s загружен",
		ModuleUnloaded:   "Модуль %s выгружен",
		ModuleNotFound:   "Модуль %s не найден",
		ModuleLoadFailed: "Ошибка загрузки %s: %s",
		ModuleLoading:    "Загрузка модуля...",
		ModulesList:      "**Загруженные модули:**",
		NoModules:        "Нет загруженных модулей",
		ReplyToFile:      "Ответьте на файл модуля",
		NotAFile:         "Это не файл",
		NeedLuaFile:      "Нужен %s файл",

		ReasonInvalidName: "недопустимое имя",
		ReasonCompile:     "ошибка компиляции",
		ReasonNotAPlugin:  "нет функции register",
		ReasonCollision:   "команда уже занята",
		ReasonDownload:    "не удалось скачать файл",

		LangChanged:   "Язык изменен на %s",
		Restarting:    "Перезагрузка...",
		Stopping:      "Остановка...",
		BackupCreated: "Бэкап создан: %s",
		BackupFailed:  "Ошибка создания бэкапа",
		TempCleaned:   "Временные файлы очищены: %d файлов",
		CommandFailed: "Ошибка команды %s",
	},
	language.English: {
		Uptime:   "Uptime",
		User:     "User",
		RAM:      "RAM",
		Host:     "Host",
		Commands: "Commands",
		HelpText: "**NewEraV4Fix - Main commands:**\n\n" +
			"`%[1]shelp` - Show commands\n" +
			"`%[1]sinfo` - System information\n" +
			"`%[1]slm` - Load module (reply to file)\n" +
			"`%[1]sulm <name>` - Unload module\n" +
			"`%[1]smodules` - Modules list\n" +
			"`%[1]ssetlang <%[2]s>` - Change language\n" +
			"`%[1]srestart` - Restart\n" +
			"`%[1]sstop` - Stop\n" +
			"`%[1]sbackup` - Create backup\n" +
			"`%[1]sclean` - Clean temp files",

		ModuleLoaded:     "Module %s loaded",
		ModuleUnloaded:   "Module %s unloaded",
		ModuleNotFound:   "Module %s not found",
		ModuleLoadFailed: "Failed to load %s: %s",
		ModuleLoading:    "Loading module...",
		ModulesList:      "**Loaded modules:**",
		NoModules:        "No modules loaded",
		ReplyToFile:      "Reply to a module file",
		NotAFile:         "That is not a file",
		NeedLuaFile:      "A %s file is required",

		ReasonInvalidName: "invalid name",
		ReasonCompile:     "compile error",
		ReasonNotAPlugin:  "no register function",
		ReasonCollision:   "command already taken",
		ReasonDownload:    "download failed",

		LangChanged:   "Language changed to %s",
		Restarting:    "Restarting...",
		Stopping:      "Stopping...",
		BackupCreated: "Backup created: %s",
		BackupFailed:  "Backup failed",
		TempCleaned:   "Temp files cleaned: %d files",
		CommandFailed: "Command %s failed",
	},
}

func build() {
	cat = catalog.NewBuilder(catalog.Fallback(language.Russian))
	printers = make(map[string]*message.Printer, len(supported))
	for _, tag := range supported {
		for key, msg := range entries[tag] {
			if err := cat.SetString(tag, key, msg); err != nil {
				panic("i18n: " + err.Error())
			}
		}
		base, _ := tag.Base()
		printers[base.String()] = message.NewPrinter(tag, message.Catalog(cat))
	}
}

// Codes returns the supported language codes in preference order.
func Codes() []string {
	out := make([]string, 0, len(supported))
	for _, tag := range supported {
		base, _ := tag.Base()
		out = append(out, base.String())
	}
	return out
}

// Supported reports whether code names a supported language.
func Supported(code string) bool {
	for _, c := range Codes() {
		if c == code {
			return true
		}
	}
	return false
}

// Normalize maps code onto a supported language, falling back to
// DefaultLanguage.
func Normalize(code string) string {
	tag, err := language.Parse(strings.TrimSpace(code))
	if err != nil {
		return DefaultLanguage
	}
	matcher := language.NewMatcher(supported)
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return DefaultLanguage
	}
	return Codes()[idx]
}

// Text renders key in lang. Unknown keys render as the key itself.
func Text(lang, key string, args ...any) string {
	once.Do(build)
	p, ok := printers[lang]
	if !ok {
		p = printers[DefaultLanguage]
	}
	if _, known := entries[language.English][key]; !known {
		return key
	}
	return p.Sprintf(key, args...)
}

// Help renders the localized command list for prefix.
func Help(lang, prefix string) string {
	return Text(lang, HelpText, prefix, strings.Join(Codes(), "/"))
}
