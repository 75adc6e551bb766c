package site

// RawRow is one grid row as returned by the bulk row script
type RawRow struct {
	Cells    []string `json:"cells"`
	DetailID string   `json:"detailId"`
}

// PageInfo is the result of the page state script
type PageInfo struct {
	Current     int    `json:"current"`
	HasNext     bool   `json:"hasNext"`
	HasPrevious bool   `json:"hasPrevious"`
	Info        string `json:"info"`
}

// GridSnapshot is the result of the grid diagnostics script
type GridSnapshot struct {
	Tables  int      `json:"tables"`
	Rows    int      `json:"rows"`
	Headers []string `json:"headers"`
	Info    string   `json:"info"`
	Pager   bool     `json:"pager"`
	URL     string   `json:"url"`
}

// FilterArgs is passed to the SetFilters script
type FilterArgs struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Basis string `json:"basis"`
	Limit int    `json:"limit"`
}

var defaultScripts = Scripts{
	BulkRows: `(function() {
  return Array.from(document.querySelectorAll('#orderTB tbody tr, table tbody tr'))
    .filter(function(row) { return row.querySelectorAll('td').length > 0; })
    .map(function(row) {
      var cells = Array.from(row.querySelectorAll('td')).map(function(c) { return c.innerText.trim(); });
      var link = row.querySelector('a[href*="/so/detail/"]');
      var m = link ? (link.getAttribute('href') || '').match(/\/so\/detail\/(\d+)/) : null;
      return { cells: cells, detailId: m ? m[1] : '' };
    });
})()`,

	Fingerprint: `(function() {
  var rows = document.querySelectorAll('#orderTB tbody tr');
  var out = [];
  for (var i = 0; i < Math.min(rows.length, 3); i++) {
    var cells = rows[i].querySelectorAll('td');
    if (cells.length > 1) {
      out.push(cells[0].textContent.trim() + '|' + cells[1].textContent.trim());
    } else if (cells.length === 1) {
      out.push(cells[0].textContent.trim());
    }
  }
  return out;
})()`,

	PageState: `(function() {
  var cur = document.querySelector('.paginate_button.current');
  var next = document.querySelector('.paginate_button.next');
  var prev = document.querySelector('.paginate_button.previous');
  var info = document.querySelector('#orderTB_info');
  return {
    current: cur ? (parseInt(cur.textContent.trim(), 10) || 1) : 1,
    hasNext: !!next && !next.classList.contains('disabled'),
    hasPrevious: !!prev && !prev.classList.contains('disabled'),
    info: info ? info.textContent.trim() : ''
  };
})()`,

	ScrollToPager: `(function() {
  window.scrollTo(0, document.body.scrollHeight);
  var pager = document.querySelector('.dataTables_paginate');
  if (pager) { pager.scrollIntoView(true); return true; }
  return false;
})()`,

	ClickNext: `(function() {
  var buttons = document.querySelectorAll('.paginate_button.next');
  for (var i = 0; i < buttons.length; i++) {
    var b = buttons[i];
    if (!b.classList.contains('disabled') && b.offsetWidth > 0 && b.offsetHeight > 0) {
      b.click();
      return true;
    }
  }
  return false;
})()`,

	GridNextPage: `(function() {
  if (typeof $ !== 'undefined' && $('#orderTB').length > 0 && $.fn.DataTable) {
    $('#orderTB').DataTable().page('next').draw('page');
    return true;
  }
  return false;
})()`,

	SetFilters: `function(opts) {
  if (typeof $ === 'undefined') { return false; }
  $('#date_from').val(opts.from);
  $('#date_to').val(opts.to);
  $('#daterange-btn-detail').text(opts.from + ' - ' + opts.to);
  $('#time_type').val(opts.basis);
  $('#limit').val(String(opts.limit));
  return $('#date_from').val() === opts.from && $('#time_type').val() === opts.basis;
}`,

	SubmitFilters: `(function() {
  var form = document.querySelector('#filter-form');
  if (!form) { return false; }
  if (typeof $ !== 'undefined') { $(form).submit(); } else { form.submit(); }
  return true;
})()`,

	SelectOrders: `function(ids) {
  var wanted = {};
  ids.forEach(function(id) { wanted[id] = true; });
  var count = 0;
  document.querySelectorAll('#orderTB tbody input[type="checkbox"]').forEach(function(box) {
    var row = box.closest('tr');
    var id = box.value;
    if (!wanted[id] && row) {
      var link = row.querySelector('a[href*="/so/detail/"]');
      var m = link ? (link.getAttribute('href') || '').match(/\/so\/detail\/(\d+)/) : null;
      id = m ? m[1] : id;
    }
    if (wanted[id] && !box.checked) { box.click(); }
    if (wanted[id] && box.checked) { count++; }
  });
  return count;
}`,

	ClearSelection: `(function() {
  var n = 0;
  document.querySelectorAll('#orderTB tbody input[type="checkbox"]:checked').forEach(function(box) { box.click(); n++; });
  return n;
})()`,

	GridInfoSnapshot: `(function() {
  var table = document.querySelector('#orderTB') || document.querySelector('table');
  var headers = table ? Array.from(table.querySelectorAll('thead th')).map(function(th) { return th.innerText.trim(); }) : [];
  var info = document.querySelector('#orderTB_info');
  return {
    tables: document.querySelectorAll('table').length,
    rows: table ? table.querySelectorAll('tbody tr').length : 0,
    headers: headers,
    info: info ? info.textContent.trim() : '',
    pager: !!document.querySelector('.dataTables_paginate'),
    url: window.location.href
  };
})()`,
}
