// pages.go — templ-компоненты страниц BIM.
package ui

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/a-h/templ"
)

// HomeData — данные главной страницы BIM.
type HomeData struct {
	// Username — отображаемое имя пользователя
	Username string
	// UploadURL — endpoint загрузки файла
	UploadURL string
	// FilesURL — endpoint списка файлов
	FilesURL string
	// FileURLPrefix — префикс endpoint одного файла (к нему дописывается ID)
	FileURLPrefix string
	// TestURL — ссылка на тестовую страницу
	TestURL string
}

// TestData — данные тестовой страницы.
type TestData struct {
	Username string
	HomeURL  string
}

// writeAll последовательно пишет фрагменты разметки.
func writeAll(w io.Writer, parts ...string) error {
	for _, p := range parts {
		if _, err := io.WriteString(w, p); err != nil {
			return err
		}
	}
	return nil
}

// esc экранирует текст и значения атрибутов.
func esc(s string) string {
	return templ.EscapeString(s)
}

// layout оборачивает содержимое страницы в общий каркас с шапкой и подвалом.
func layout(s SiteSettings, title, username string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		t := s.Theme
		if err := writeAll(w,
			`<!DOCTYPE html><html lang="ru"><head><meta charset="utf-8">`,
			`<meta name="viewport" content="width=device-width, initial-scale=1">`,
			`<title>`, esc(title), ` | `, esc(s.AppName), `</title>`,
			`<style>`,
			`body{margin:0;font-family:system-ui,sans-serif;background:`, t.Background, `;color:`, t.Text, `}`,
			`header,footer{display:flex;align-items:center;gap:12px;padding:12px 24px;background:`, t.Surface, `;border-bottom:1px solid `, t.Border, `}`,
			`footer{border-top:1px solid `, t.Border, `;border-bottom:none;font-size:13px}`,
			`main{max-width:960px;margin:24px auto;padding:0 24px}`,
			`.card{background:`, t.Surface, `;border:1px solid `, t.Border, `;border-radius:6px;padding:16px;margin-bottom:16px}`,
			`a,button.link{color:`, t.Primary, `}`,
			`table{width:100%;border-collapse:collapse}td,th{padding:6px;border-bottom:1px solid `, t.Border, `;text-align:left}`,
			`pre{white-space:pre-wrap;word-break:break-all}`,
			`.user{margin-left:auto}`,
			`</style></head><body class="theme-`, esc(t.Name), `"><header>`,
		); err != nil {
			return err
		}
		if s.AppLogo != "" {
			if err := writeAll(w, `<img src="`, esc(s.AppLogo), `" alt="" height="36">`); err != nil {
				return err
			}
		}
		if err := writeAll(w, `<strong>`, esc(s.AppName), `</strong>`); err != nil {
			return err
		}
		if username != "" {
			if err := writeAll(w, `<span class="user">`, esc(username), `</span>`); err != nil {
				return err
			}
		}
		if err := writeAll(w, `</header><main>`); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		if err := writeAll(w, `</main><footer>`); err != nil {
			return err
		}
		org := esc(s.OrganizationName)
		if s.OrganizationWebsite != "" {
			org = `<a href="` + esc(s.OrganizationWebsite) + `">` + org + `</a>`
		}
		return writeAll(w, org, `</footer></body></html>`)
	})
}

// homeScript — клиентская логика главной страницы: список, загрузка,
// просмотр метаданных и удаление через JSON API.
const homeScript = `<script>
(function(){
  var root = document.getElementById("bim");
  var urls = root.dataset;
  var out = document.getElementById("bim-output");
  var rows = document.getElementById("bim-files");

  function show(data){ out.textContent = JSON.stringify(data, null, 2); }
  function request(method, url, body){
    return fetch(url, {method: method, body: body, credentials: "same-origin"})
      .then(function(r){ return r.json(); });
  }
  function refresh(){
    request("GET", urls.filesUrl).then(function(data){
      rows.innerHTML = "";
      (data.files || []).forEach(function(f){
        var tr = document.createElement("tr");
        [f.filename, f.file_type, String(f.size)].forEach(function(v){
          var td = document.createElement("td"); td.textContent = v; tr.appendChild(td);
        });
        var actions = document.createElement("td");
        var info = document.createElement("button"); info.className = "link"; info.textContent = "Info";
        info.onclick = function(){ request("GET", urls.fileUrl + f.id).then(show); };
        var del = document.createElement("button"); del.className = "link"; del.textContent = "Delete";
        del.onclick = function(){ request("DELETE", urls.fileUrl + f.id).then(function(d){ show(d); refresh(); }); };
        actions.appendChild(info); actions.appendChild(del); tr.appendChild(actions);
        rows.appendChild(tr);
      });
    });
  }
  document.getElementById("bim-upload").addEventListener("submit", function(e){
    e.preventDefault();
    request("POST", urls.uploadUrl, new FormData(e.target)).then(function(d){ show(d); refresh(); });
  });
  refresh();
})();
</script>`

// Home — главная страница BIM: загрузка и список файлов пользователя.
func Home(s SiteSettings, data HomeData) templ.Component {
	body := templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		return writeAll(w,
			`<div id="bim" data-upload-url="`, esc(data.UploadURL),
			`" data-files-url="`, esc(data.FilesURL),
			`" data-file-url="`, esc(data.FileURLPrefix), `">`,
			`<div class="card"><h2>Загрузка файла</h2>`,
			`<form id="bim-upload" enctype="multipart/form-data">`,
			`<input type="file" name="file" accept=".las,.laz,.tif,.tiff" required> `,
			`<button type="submit">Загрузить</button></form>`,
			`<p>LAZ, LAS или GeoTIFF. LAS-файлы сохраняются в формате LAZ.</p></div>`,
			`<div class="card"><h2>Файлы</h2><table><thead><tr>`,
			`<th>Имя</th><th>Тип</th><th>Размер</th><th></th></tr></thead>`,
			`<tbody id="bim-files"></tbody></table></div>`,
			`<div class="card"><pre id="bim-output"></pre></div>`,
			`<p><a href="`, esc(data.TestURL), `">Тестовая страница</a></p>`,
			`</div>`,
			homeScript,
		)
	})
	return layout(s, "BIM", data.Username, body)
}

// Test — тестовая страница со ссылкой на главную.
func Test(s SiteSettings, data TestData) templ.Component {
	body := templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		return writeAll(w,
			`<div class="card"><h2>Test</h2>`,
			`<p><a href="`, esc(data.HomeURL), `">На главную BIM</a></p></div>`,
		)
	})
	return layout(s, "Test", data.Username, body)
}

// ErrorPage — HTML-страница ошибки (404, 500).
func ErrorPage(s SiteSettings, status int, message string) templ.Component {
	title := strconv.Itoa(status) + " " + http.StatusText(status)
	body := templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		return writeAll(w,
			`<div class="card"><h2>`, esc(title), `</h2>`,
			`<p>`, esc(message), `</p></div>`,
		)
	})
	return layout(s, title, "", body)
}
